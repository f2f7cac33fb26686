package actions

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xela07ax/rootgw/internal/domain"
)

var (
	packageName    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(\.[a-zA-Z][a-zA-Z0-9_]*)+$`)
	permissionName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(\.[a-zA-Z0-9_]+)+$`)
	fileStem       = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	hostName       = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]{0,252}[a-zA-Z0-9])?$|^[0-9a-fA-F:]{2,39}$`)
)

// Общие параметры
var (
	pState   = ParamSpec{Name: "state", Kind: domain.KindBool, Required: true}
	pPackage = ParamSpec{Name: "package", Kind: domain.KindString, Required: true, Pattern: packageName, MaxLen: 255}
	pPID     = ParamSpec{Name: "pid", Kind: domain.KindInt, Required: true, Min: 2, Max: 4194304}
)

func coord(name string) ParamSpec {
	return ParamSpec{Name: name, Kind: domain.KindInt, Required: true, Min: 0, Max: 10000}
}

func duration(def int64) ParamSpec {
	return ParamSpec{Name: "duration_ms", Kind: domain.KindInt, Default: domain.Int(def), Min: 1, Max: 10000}
}

// fixed - действие без параметров с постоянной командной строкой.
func fixed(cmdline string) BuildFunc {
	return func(TypedParams) (string, error) { return cmdline, nil }
}

// toggle выбирает строку по параметру state.
func toggle(on, off string) BuildFunc {
	return func(p TypedParams) (string, error) {
		if p.Bool("state") {
			return on, nil
		}
		return off, nil
	}
}

func onPackage(cmd string) BuildFunc {
	return func(p TypedParams) (string, error) { return line(cmd, p.Str("package")) }
}

// Номера аудиопотоков AudioSystem.STREAM_*
var audioStreams = map[string]int{
	"call":         0,
	"system":       1,
	"ring":         2,
	"music":        3,
	"alarm":        4,
	"notification": 5,
}

func streamNames() []string {
	return []string{"call", "system", "ring", "music", "alarm", "notification"}
}

var cpuGovernors = []string{"performance", "powersave", "schedutil", "interactive", "ondemand", "conservative"}

var trimLevels = []string{"HIDDEN", "RUNNING_MODERATE", "BACKGROUND", "RUNNING_LOW", "MODERATE", "RUNNING_CRITICAL", "COMPLETE"}

// table - единственный источник правды. Добавление действия = одна строка здесь.
var table = []Spec{
	// --- Аппаратные переключатели ---
	{
		ID:          "root_wifi_toggle",
		Category:    CategoryHardware,
		Risk:        domain.RiskNormal,
		Description: "Enable or disable Wi-Fi",
		Params:      []ParamSpec{pState},
		Build:       toggle("svc wifi enable", "svc wifi disable"),
	},
	{
		ID:          "root_bluetooth_toggle",
		Category:    CategoryHardware,
		Risk:        domain.RiskNormal,
		Description: "Enable or disable Bluetooth",
		Params:      []ParamSpec{pState},
		Build:       toggle("svc bluetooth enable", "svc bluetooth disable"),
	},
	{
		ID:          "root_mobile_data_toggle",
		Category:    CategoryHardware,
		Risk:        domain.RiskNormal,
		Description: "Enable or disable mobile data",
		Params:      []ParamSpec{pState},
		Build:       toggle("svc data enable", "svc data disable"),
	},
	{
		ID:          "root_nfc_toggle",
		Category:    CategoryHardware,
		Risk:        domain.RiskNormal,
		Description: "Enable or disable NFC",
		Params:      []ParamSpec{pState},
		Build:       toggle("svc nfc enable", "svc nfc disable"),
	},
	{
		ID:          "root_airplane_mode",
		Category:    CategoryHardware,
		Risk:        domain.RiskNormal,
		Description: "Enable or disable airplane mode",
		Params:      []ParamSpec{pState},
		Build:       toggle("cmd connectivity airplane-mode enable", "cmd connectivity airplane-mode disable"),
	},
	{
		ID:          "root_location_toggle",
		Category:    CategoryHardware,
		Risk:        domain.RiskNormal,
		Description: "Enable or disable location services",
		Params:      []ParamSpec{pState},
		Build:       toggle("settings put secure location_mode 3", "settings put secure location_mode 0"),
	},

	// --- Громкость и яркость ---
	{
		ID:          "root_set_volume",
		Category:    CategoryAudio,
		Risk:        domain.RiskNormal,
		Description: "Set the volume of an audio stream",
		Params: []ParamSpec{
			{Name: "stream", Kind: domain.KindString, Default: domain.String("music"), Enum: streamNames()},
			{Name: "level", Kind: domain.KindInt, Required: true, Min: 0, Max: 25},
		},
		Build: func(p TypedParams) (string, error) {
			return fmt.Sprintf("cmd media_session volume --stream %d --set %d", audioStreams[p.Str("stream")], p.Int("level")), nil
		},
	},
	{
		ID:          "root_volume_mute",
		Category:    CategoryAudio,
		Risk:        domain.RiskNormal,
		Description: "Toggle mute",
		Build:       fixed("input keyevent 164"),
	},
	{
		ID:          "root_set_brightness",
		Category:    CategoryAudio,
		Risk:        domain.RiskNormal,
		Description: "Set screen brightness (0-255)",
		Params:      []ParamSpec{{Name: "level", Kind: domain.KindInt, Required: true, Min: 0, Max: 255}},
		Build: func(p TypedParams) (string, error) {
			return fmt.Sprintf("settings put system screen_brightness_mode 0 && settings put system screen_brightness %d", p.Int("level")), nil
		},
	},
	{
		ID:          "root_auto_brightness",
		Category:    CategoryAudio,
		Risk:        domain.RiskNormal,
		Description: "Enable or disable adaptive brightness",
		Params:      []ParamSpec{pState},
		Build:       toggle("settings put system screen_brightness_mode 1", "settings put system screen_brightness_mode 0"),
	},

	// --- Питание ---
	{
		ID:          "root_reboot_device",
		Category:    CategoryPower,
		Risk:        domain.RiskHigh,
		Description: "Reboot the device",
		Build:       fixed("reboot"),
	},
	{
		ID:          "root_reboot_recovery",
		Category:    CategoryPower,
		Risk:        domain.RiskHigh,
		Description: "Reboot into recovery",
		Build:       fixed("reboot recovery"),
	},
	{
		ID:          "root_reboot_bootloader",
		Category:    CategoryPower,
		Risk:        domain.RiskHigh,
		Description: "Reboot into the bootloader",
		Build:       fixed("reboot bootloader"),
	},
	{
		ID:          "root_shutdown_device",
		Category:    CategoryPower,
		Risk:        domain.RiskHigh,
		Description: "Power the device off",
		Build:       fixed("reboot -p"),
	},
	{
		ID:          "root_battery_saver",
		Category:    CategoryPower,
		Risk:        domain.RiskNormal,
		Description: "Enable or disable battery saver",
		Params:      []ParamSpec{pState},
		Build:       toggle("settings put global low_power 1", "settings put global low_power 0"),
	},

	// --- Экран ---
	{
		ID:          "root_screen_on",
		Category:    CategoryScreen,
		Risk:        domain.RiskNormal,
		Description: "Wake the screen",
		Build:       fixed("input keyevent 224"),
	},
	{
		ID:          "root_screen_off",
		Category:    CategoryScreen,
		Risk:        domain.RiskNormal,
		Description: "Turn the screen off",
		Build:       fixed("input keyevent 223"),
	},
	{
		ID:          "root_screenshot",
		Category:    CategoryScreen,
		Risk:        domain.RiskNormal,
		Description: "Capture a screenshot into /sdcard/Pictures/Screenshots",
		Params:      []ParamSpec{{Name: "name", Kind: domain.KindString, Default: domain.String("agent_screenshot"), Pattern: fileStem}},
		Timeout:     20 * time.Second,
		Build: func(p TypedParams) (string, error) {
			return line("screencap -p", "/sdcard/Pictures/Screenshots/"+p.Str("name")+".png")
		},
	},
	{
		ID:          "root_set_rotation",
		Category:    CategoryScreen,
		Risk:        domain.RiskNormal,
		Description: "Lock screen rotation (0-3, quarter turns)",
		Params:      []ParamSpec{{Name: "rotation", Kind: domain.KindInt, Required: true, Min: 0, Max: 3}},
		Build: func(p TypedParams) (string, error) {
			return fmt.Sprintf("settings put system accelerometer_rotation 0 && settings put system user_rotation %d", p.Int("rotation")), nil
		},
	},
	{
		ID:          "root_screen_timeout",
		Category:    CategoryScreen,
		Risk:        domain.RiskNormal,
		Description: "Set screen-off timeout in seconds",
		Params:      []ParamSpec{{Name: "seconds", Kind: domain.KindInt, Required: true, Min: 5, Max: 3600}},
		Build: func(p TypedParams) (string, error) {
			return fmt.Sprintf("settings put system screen_off_timeout %d", p.Int("seconds")*1000), nil
		},
	},

	// --- Жизненный цикл приложений ---
	{
		ID:          "root_launch_app",
		Category:    CategoryApps,
		Risk:        domain.RiskNormal,
		Description: "Launch an application",
		Params:      []ParamSpec{pPackage},
		Build: func(p TypedParams) (string, error) {
			cmd, err := line("monkey -p", p.Str("package"))
			if err != nil {
				return "", err
			}
			return cmd + " -c android.intent.category.LAUNCHER 1", nil
		},
	},
	{
		ID:          "root_force_stop_app",
		Category:    CategoryApps,
		Risk:        domain.RiskNormal,
		Description: "Force-stop an application",
		Params:      []ParamSpec{pPackage},
		Build:       onPackage("am force-stop"),
	},
	{
		ID:          "root_clear_app_data",
		Category:    CategoryApps,
		Risk:        domain.RiskHigh,
		Description: "Wipe all data of an application",
		Params:      []ParamSpec{pPackage},
		Build:       onPackage("pm clear"),
	},
	{
		ID:          "root_uninstall_app",
		Category:    CategoryApps,
		Risk:        domain.RiskHigh,
		Description: "Uninstall an application",
		Params:      []ParamSpec{pPackage},
		Timeout:     60 * time.Second,
		Build:       onPackage("pm uninstall"),
	},
	{
		ID:          "root_disable_app",
		Category:    CategoryApps,
		Risk:        domain.RiskHigh,
		Description: "Disable an application for user 0",
		Params:      []ParamSpec{pPackage},
		Build:       onPackage("pm disable-user --user 0"),
	},
	{
		ID:          "root_enable_app",
		Category:    CategoryApps,
		Risk:        domain.RiskNormal,
		Description: "Re-enable a disabled application",
		Params:      []ParamSpec{pPackage},
		Build:       onPackage("pm enable"),
	},
	{
		ID:          "root_grant_permission",
		Category:    CategoryApps,
		Risk:        domain.RiskHigh,
		Description: "Grant a runtime permission to an application",
		Params: []ParamSpec{
			pPackage,
			{Name: "permission", Kind: domain.KindString, Required: true, Pattern: permissionName, MaxLen: 255},
		},
		Build: func(p TypedParams) (string, error) {
			return line("pm grant", p.Str("package"), p.Str("permission"))
		},
	},
	{
		ID:          "root_kill_process",
		Category:    CategoryApps,
		Risk:        domain.RiskHigh,
		Description: "Kill a process by PID",
		Params:      []ParamSpec{pPID},
		Build: func(p TypedParams) (string, error) {
			return line("kill -9", p.Int("pid"))
		},
	},

	// --- Память и производительность ---
	{
		ID:          "root_drop_caches",
		Category:    CategoryMemory,
		Risk:        domain.RiskNormal,
		Description: "Drop page cache, dentries and inodes",
		Build:       fixed("sync && echo 3 > /proc/sys/vm/drop_caches"),
	},
	{
		ID:          "root_kill_background",
		Category:    CategoryMemory,
		Risk:        domain.RiskNormal,
		Description: "Kill all background processes",
		Build:       fixed("am kill-all"),
	},
	{
		ID:          "root_trim_memory",
		Category:    CategoryMemory,
		Risk:        domain.RiskNormal,
		Description: "Ask an application to trim its memory",
		Params: []ParamSpec{
			pPackage,
			{Name: "level", Kind: domain.KindString, Default: domain.String("RUNNING_LOW"), Enum: trimLevels},
		},
		Build: func(p TypedParams) (string, error) {
			return line("am send-trim-memory", p.Str("package"), p.Str("level"))
		},
	},
	{
		ID:          "root_set_cpu_governor",
		Category:    CategoryMemory,
		Risk:        domain.RiskNormal,
		Description: "Set the cpufreq governor on all cores",
		Params:      []ParamSpec{{Name: "governor", Kind: domain.KindString, Required: true, Enum: cpuGovernors}},
		Build: func(p TypedParams) (string, error) {
			gov, err := quote(p.Str("governor"))
			if err != nil {
				return "", err
			}
			return "for f in /sys/devices/system/cpu/cpu*/cpufreq/scaling_governor; do echo " + gov + ` > "$f"; done`, nil
		},
	},
	{
		ID:          "root_set_oom_adj",
		Category:    CategoryMemory,
		Risk:        domain.RiskNormal,
		Description: "Set oom_score_adj of a process (-1000..1000)",
		Params: []ParamSpec{
			pPID,
			{Name: "score", Kind: domain.KindInt, Required: true, Min: -1000, Max: 1000},
		},
		Build: func(p TypedParams) (string, error) {
			return fmt.Sprintf("echo %d > /proc/%d/oom_score_adj", p.Int("score"), p.Int("pid")), nil
		},
	},
	{
		ID:          "root_read_temperature",
		Category:    CategoryMemory,
		Risk:        domain.RiskNormal,
		Description: "Read a thermal zone temperature (millidegrees C)",
		Params:      []ParamSpec{{Name: "zone", Kind: domain.KindInt, Default: domain.Int(0), Min: 0, Max: 63}},
		Build: func(p TypedParams) (string, error) {
			return fmt.Sprintf("cat /sys/class/thermal/thermal_zone%d/temp", p.Int("zone")), nil
		},
	},

	// --- Ввод ---
	{
		ID:          "root_input_tap",
		Category:    CategoryInput,
		Risk:        domain.RiskNormal,
		Description: "Tap at screen coordinates",
		Params:      []ParamSpec{coord("x"), coord("y")},
		Build: func(p TypedParams) (string, error) {
			return line("input tap", p.Int("x"), p.Int("y"))
		},
	},
	{
		ID:          "root_input_swipe",
		Category:    CategoryInput,
		Risk:        domain.RiskNormal,
		Description: "Swipe between two points",
		Params:      []ParamSpec{coord("x1"), coord("y1"), coord("x2"), coord("y2"), duration(300)},
		Build: func(p TypedParams) (string, error) {
			return line("input swipe", p.Int("x1"), p.Int("y1"), p.Int("x2"), p.Int("y2"), p.Int("duration_ms"))
		},
	},
	{
		ID:          "root_input_long_press",
		Category:    CategoryInput,
		Risk:        domain.RiskNormal,
		Description: "Long-press at screen coordinates",
		Params:      []ParamSpec{coord("x"), coord("y"), duration(800)},
		Build: func(p TypedParams) (string, error) {
			x, y := p.Int("x"), p.Int("y")
			return line("input swipe", x, y, x, y, p.Int("duration_ms"))
		},
	},
	{
		ID:          "root_input_text",
		Category:    CategoryInput,
		Risk:        domain.RiskNormal,
		Description: "Type text into the focused field",
		Params:      []ParamSpec{{Name: "text", Kind: domain.KindString, Required: true, MaxLen: 1000}},
		Build: func(p TypedParams) (string, error) {
			// input text воспринимает %s как пробел
			return line("input text", strings.ReplaceAll(p.Str("text"), " ", "%s"))
		},
	},
	{
		ID:          "root_input_keyevent",
		Category:    CategoryInput,
		Risk:        domain.RiskNormal,
		Description: "Send a key event by Android keycode",
		Params:      []ParamSpec{{Name: "keycode", Kind: domain.KindInt, Required: true, Min: 0, Max: 400}},
		Build: func(p TypedParams) (string, error) {
			return line("input keyevent", p.Int("keycode"))
		},
	},

	// --- Файлы и свойства (второй белый список) ---
	{
		ID:          "root_read_file",
		Category:    CategoryFiles,
		Risk:        domain.RiskNormal,
		Description: "Read an allowlisted file",
		Params:      []ParamSpec{{Name: "path", Kind: domain.KindString, Required: true, MaxLen: 4096}},
		Guard: func(p TypedParams, t Targets) error {
			return t.AllowPath(p.Str("path"))
		},
		Build: func(p TypedParams) (string, error) {
			return line("cat --", p.Str("path"))
		},
	},
	{
		ID:          "root_get_property",
		Category:    CategoryFiles,
		Risk:        domain.RiskNormal,
		Description: "Read an allowlisted system property",
		Params:      []ParamSpec{{Name: "name", Kind: domain.KindString, Required: true}},
		Guard: func(p TypedParams, t Targets) error {
			return t.AllowProperty(p.Str("name"), false)
		},
		Build: func(p TypedParams) (string, error) {
			return line("getprop", p.Str("name"))
		},
	},
	{
		ID:          "root_set_property",
		Category:    CategoryFiles,
		Risk:        domain.RiskHigh,
		Description: "Set an allowlisted system property",
		Params: []ParamSpec{
			{Name: "name", Kind: domain.KindString, Required: true},
			{Name: "value", Kind: domain.KindString, Required: true, MaxLen: 91},
		},
		Guard: func(p TypedParams, t Targets) error {
			return t.AllowProperty(p.Str("name"), true)
		},
		Build: func(p TypedParams) (string, error) {
			return line("setprop", p.Str("name"), p.Str("value"))
		},
	},

	// --- Сеть ---
	{
		ID:          "root_network_info",
		Category:    CategoryNetwork,
		Risk:        domain.RiskNormal,
		Description: "Show network interfaces and addresses",
		Build:       fixed("ip addr show"),
	},
	{
		ID:          "root_wifi_status",
		Category:    CategoryNetwork,
		Risk:        domain.RiskNormal,
		Description: "Show Wi-Fi connection status",
		Build:       fixed("cmd wifi status"),
	},
	{
		ID:          "root_ping",
		Category:    CategoryNetwork,
		Risk:        domain.RiskNormal,
		Description: "Ping a host",
		Params: []ParamSpec{
			{Name: "host", Kind: domain.KindString, Required: true, Pattern: hostName, MaxLen: 253},
			{Name: "count", Kind: domain.KindInt, Default: domain.Int(3), Min: 1, Max: 10},
		},
		Timeout: 30 * time.Second,
		Build: func(p TypedParams) (string, error) {
			return line("ping -W 2 -c", p.Int("count"), p.Str("host"))
		},
	},
}
