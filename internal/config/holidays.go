// internal/config/holidays.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Holiday is one non-working day in the local authority's calendar.
type Holiday struct {
	Date string `yaml:"date"`
	Name string `yaml:"name"`
}

type holidayFile struct {
	Holidays []Holiday `yaml:"holidays"`
}

// LoadHolidays reads a YAML holiday calendar. An empty path yields no holidays.
//
//	holidays:
//	  - date: 2026-12-25
//	    name: Christmas Day
func LoadHolidays(path string) ([]Holiday, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read holidays file %s: %w", path, err)
	}

	var file holidayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse holidays file %s: %w", path, err)
	}

	for _, h := range file.Holidays {
		if _, err := time.Parse("2006-01-02", h.Date); err != nil {
			return nil, fmt.Errorf("invalid holiday date %q (%s): %w", h.Date, h.Name, err)
		}
	}

	return file.Holidays, nil
}
