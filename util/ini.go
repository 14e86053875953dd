package util

import (
	"gopkg.in/ini.v1"
)

// Ini loads a section of an ini file as a string map. A missing file is an
// error, a missing section yields an empty map.
func Ini(filename, section string) (map[string]string, error) {
	cfg, err := ini.Load(filename)
	if err != nil {
		return nil, err
	}
	return cfg.Section(section).KeysHash(), nil
}
