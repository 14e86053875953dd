package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/courseloc/courseloc/backend"
	"github.com/courseloc/courseloc/core"
	"github.com/courseloc/courseloc/invalidate"
	"github.com/courseloc/courseloc/notify"
	"github.com/courseloc/courseloc/sqldb"
	"github.com/courseloc/courseloc/util"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/xo/dburl"
	"golang.org/x/crypto/ssh/terminal"
)

func init() {
	log.SetFlags(0) // no log prefixes, on most systems systemd-journald adds them
}

func main() {

	var dbArg string // is in both FlagSets

	// default FlagSet

	flag.StringVar(&dbArg, "db", "sqlite3:courseloc.sqlite3?_busy_timeout=10000&_journal=WAL&_sync=NORMAL&cache=shared", "sql database url, see github.com/xo/dburl")
	var configArg = flag.String("config", "config/courseloc.ini", "ini file with smtp and cache notifier settings")
	var listenAddr = flag.String("listen", "127.0.0.1:8080", "serve HTTP content at this `ip:port`")
	var verbose = flag.Bool("verbose", false, "log side-effect dispatch at debug level")

	// init FlagSet

	var initFlags = flag.NewFlagSet("init", flag.ExitOnError)

	initFlags.StringVar(&dbArg, "db", "sqlite3:courseloc.sqlite3?_busy_timeout=10000&_journal=WAL&_sync=NORMAL&cache=shared", "sql database url, see github.com/xo/dburl") // copied from above
	var initInsert = initFlags.Bool("insert", false, "creates the given user")
	var initMintToken = initFlags.Bool("mint-token", false, "generates and prints a new API token for the given user")
	var initSetToken = initFlags.Bool("set-token", false, "prompts for an API token for the given user")
	var username = initFlags.String("user", "", "specifies a user `email`")
	var rolename = initFlags.String("role", "editor", "specifies a role: editor, admin or superadmin")
	var languages = initFlags.String("languages", "", "comma-separated language scope for admins, like `ru,he`")

	if len(os.Args) > 1 && os.Args[1] == "init" {
		initFlags.Parse(os.Args[2:])
	} else {
		flag.Parse()
	}

	// database

	dbURL, err := dburl.Parse(dbArg)
	if err != nil {
		log.Printf("could not parse database url: %v", err)
		return
	}

	sqlDB, err := sql.Open(dbURL.Driver, dbURL.DSN)
	if err != nil {
		log.Printf("could not open sql database: %v", err)
		return
	}

	if err = sqlDB.Ping(); err != nil {
		log.Printf("could not ping sql database: %v", err)
		return
	}

	log.Printf("using database %s", dbURL.String())

	defer func() {
		log.Println("closing database")
		sqlDB.Close()
	}()

	// logging

	var logger = logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	// assemble stuff

	db := &core.CoreDB{}
	db.AuditDB = sqldb.NewAuditDB(sqlDB)
	db.UnitDB = sqldb.NewUnitDB(sqlDB)
	db.UserDB = sqldb.NewUserDB(sqlDB)
	db.Log = logger
	db.Init()

	// init

	if initFlags.Parsed() {
		if *username == "" {
			log.Println("init requires -user")
			return
		}
		switch {
		case *initInsert:
			insertUser(db, *username, *rolename, *languages)
		case *initMintToken:
			mintToken(db, *username)
		case *initSetToken:
			setToken(db, *username)
		default:
			initFlags.Usage()
		}
		return
	}

	// side effects, config file is optional

	smtpConfig, notifierURL, notifierSecret := loadConfig(*configArg)

	db.Notifier = notify.NewDispatcher(db.UserDB, &notify.SMTPMailer{Config: smtpConfig, Log: logger}, logger)
	db.Invalidator = invalidate.New(notifierURL, notifierSecret, db.EffectTimeout, logger)

	listen(db, logger, *listenAddr)
}

func loadConfig(filename string) (notify.SMTPConfig, string, string) {

	var smtpConfig notify.SMTPConfig
	var notifierURL, notifierSecret string

	if smtp, err := util.Ini(filename, "smtp"); err == nil {
		smtpConfig = notify.SMTPConfig{
			Host:        smtp["host"],
			Addr:        smtp["addr"],
			Username:    smtp["username"],
			Password:    smtp["password"],
			FromName:    smtp["from_name"],
			FromAddress: smtp["from_address"],
		}
		if smtpConfig.Addr == "" && smtpConfig.Host != "" {
			smtpConfig.Addr = smtpConfig.Host + ":587"
		}
	} else {
		log.Printf("no smtp config (%v), notifications are dropped", err)
	}

	if cache, err := util.Ini(filename, "cache_notifier"); err == nil {
		notifierURL = cache["url"]
		notifierSecret = cache["secret"]
	}

	return smtpConfig, notifierURL, notifierSecret
}

func listen(db *core.CoreDB, logger *logrus.Logger, addr string) {

	var server = &http.Server{
		Addr:    addr,
		Handler: backend.NewRouter(db, logger),
	}

	var idle = make(chan interface{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("error shutting down: %v", err)
		}
		close(idle)
	}()

	log.Printf("listening on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("error listening: %v", err)
		return
	}

	<-idle
}

func insertUser(db *core.CoreDB, name, rolename, languages string) {

	role, ok := core.ParseRole(rolename)
	if !ok {
		log.Printf("unknown role %s", rolename)
		return
	}

	var langs []core.Language
	if languages != "" {
		for _, code := range strings.Split(languages, ",") {
			lang, err := core.ParseLanguage(strings.TrimSpace(code))
			if err != nil {
				log.Printf("error parsing language: %v", err)
				return
			}
			langs = append(langs, lang)
		}
	}

	if _, err := db.UserDB.InsertUser(name, role, langs); err != nil {
		log.Printf(`error creating user "%s": %v`, name, err)
		return
	}
	log.Printf("created %s %s", role, name)
}

func mintToken(db *core.CoreDB, name string) {

	user, err := db.GetUserByName(name)
	if err != nil {
		log.Printf("error getting user %s: %v", name, err)
		return
	}

	token, err := util.RandomString32()
	if err != nil {
		log.Printf("error generating token: %v", err)
		return
	}

	if err := db.SetToken(user, token); err != nil {
		log.Printf("error setting token: %v", err)
		return
	}

	// printed once, only the hash is stored
	fmt.Printf("token for %s: %s\n", name, token)
}

func setToken(db *core.CoreDB, name string) {

	user, err := db.GetUserByName(name)
	if err != nil {
		log.Printf("error getting user %s: %v", name, err)
		return
	}

	fmt.Printf("token for user %s: ", name)
	token1, err := terminal.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		log.Printf("error reading token: %v", err)
		return
	}

	fmt.Printf("repeat token: ")
	token2, err := terminal.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		log.Printf("error reading token: %v", err)
		return
	}

	if string(token1) != string(token2) {
		log.Printf("tokens don't match")
		return
	}
	if len(token1) < 16 {
		log.Printf("refusing tokens shorter than 16 characters")
		return
	}

	if err := db.SetToken(user, string(token1)); err != nil {
		log.Printf("error setting token: %v", err)
		return
	}
}
