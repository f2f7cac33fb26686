package actions

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Targets - второй белый список для действий, которые читают файлы
// или читают/меняют системные свойства.
//
// Запись, оканчивающаяся на "/" (для путей) или "." (для свойств), - префикс,
// остальные сравниваются точно.
type Targets struct {
	ReadPaths       []string `mapstructure:"read_paths"`
	ReadProperties  []string `mapstructure:"read_properties"`
	WriteProperties []string `mapstructure:"write_properties"`
}

func DefaultTargets() Targets {
	return Targets{
		ReadPaths: []string{
			"/sdcard/",
			"/storage/emulated/0/",
			"/data/local/tmp/",
			"/proc/meminfo",
			"/proc/cpuinfo",
			"/proc/loadavg",
			"/sys/class/thermal/",
			"/sys/class/power_supply/",
			"/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor",
		},
		ReadProperties: []string{
			"ro.build.",
			"ro.product.",
			"ro.hardware",
			"persist.sys.",
			"sys.",
			"gsm.",
			"debug.",
		},
		WriteProperties: []string{
			"debug.",
			"persist.agent.",
		},
	}
}

var propertyName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// AllowPath пропускает только абсолютный канонический путь под разрешенным префиксом.
func (t Targets) AllowPath(p string) error {
	if !strings.HasPrefix(p, "/") || strings.ContainsRune(p, 0) {
		return fmt.Errorf("%w: path %q must be absolute", ErrTargetNotAllowed, p)
	}
	if path.Clean(p) != p {
		return fmt.Errorf("%w: path %q is not canonical", ErrTargetNotAllowed, p)
	}
	for _, allowed := range t.ReadPaths {
		if strings.HasSuffix(allowed, "/") {
			if strings.HasPrefix(p, allowed) && len(p) > len(allowed) {
				return nil
			}
			continue
		}
		if p == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: path %q", ErrTargetNotAllowed, p)
}

func (t Targets) AllowProperty(name string, write bool) error {
	if !propertyName.MatchString(name) {
		return fmt.Errorf("%w: property %q has unexpected format", ErrTargetNotAllowed, name)
	}
	list := t.ReadProperties
	if write {
		list = t.WriteProperties
	}
	for _, allowed := range list {
		if strings.HasSuffix(allowed, ".") {
			if strings.HasPrefix(name, allowed) && len(name) > len(allowed) {
				return nil
			}
			continue
		}
		if name == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: property %q", ErrTargetNotAllowed, name)
}
