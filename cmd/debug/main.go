package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/thatsimonsguy/heater-controller/db"
	"github.com/thatsimonsguy/heater-controller/internal/adaptive"
	"github.com/thatsimonsguy/heater-controller/internal/decision"
	"github.com/thatsimonsguy/heater-controller/internal/model"
	"github.com/thatsimonsguy/heater-controller/internal/store"
	"github.com/thatsimonsguy/heater-controller/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, last, servicePath, configFile, user, settingsFile string
	var temp, hum, window, openDistance float64
	var minutes, limit, days int
	flag.StringVar(&dbPath, "db", "data/sensor.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: thresholds, window, decide, insert-reading, prune, settings, install-service")
	flag.Float64Var(&temp, "temp", 0, "Temperature for insert-reading and decide")
	flag.Float64Var(&hum, "hum", 0, "Humidity for insert-reading and decide")
	flag.Float64Var(&window, "window", 0, "Window distance for insert-reading and decide")
	flag.Float64Var(&openDistance, "open-distance", adaptive.DefaultOpenWindowDistance, "Open window distance threshold")
	flag.StringVar(&last, "last", "OFF", "Last heater state for decide")
	flag.IntVar(&minutes, "minutes", 30, "History window in minutes for thresholds and decide")
	flag.IntVar(&limit, "limit", adaptive.DefaultSmoothingSamples, "Number of window samples for window and decide")
	flag.IntVar(&days, "days", 7, "Retention in days for prune")
	flag.StringVar(&settingsFile, "settings-file", "data/settings.json", "Saved settings file for settings")
	flag.StringVar(&servicePath, "service-path", "/etc/systemd/system/heater-controller.service", "Unit file path for install-service")
	flag.StringVar(&configFile, "config-file", "config.json", "Controller config file for install-service")
	flag.StringVar(&user, "user", "", "Service user for install-service")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of heater-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/sensor.db')")
		fmt.Println("  -cmd string\tCommand to run: thresholds, window, decide, insert-reading, prune, settings, install-service")
		fmt.Println("  -temp, -hum, -window float\tSensor values for insert-reading and decide")
		fmt.Println("  -last string\tLast heater state for decide (ON or OFF)")
		fmt.Println("  -minutes int\tHistory window for thresholds and decide")
		fmt.Println("  -limit int\tWindow samples for window and decide")
		fmt.Println("  -days int\tRetention for prune")
		fmt.Println("  -settings-file string\tSaved settings file for settings (default 'data/settings.json')")
		fmt.Println("  -service-path, -config-file, -user string\tinstall-service options")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	defaults := adaptive.Defaults{
		ColdTemp:           adaptive.DefaultColdTemp,
		DryHumidity:        adaptive.DefaultDryHumidity,
		OpenWindowDistance: openDistance,
		MinRows:            adaptive.DefaultMinRows,
	}
	historyWindow := time.Duration(minutes) * time.Minute

	var err error
	switch command {
	case "thresholds":
		var rows []model.HistoryRow
		rows, err = db.RecentReadingsCLI(dbPath, historyWindow)
		if err == nil {
			fmt.Printf("%d rows in the last %d minutes\n", len(rows), minutes)
			printJSON(adaptive.EstimateThresholds(rows, defaults))
		}
	case "window":
		var values []float64
		values, err = db.RecentWindowValuesCLI(dbPath, limit)
		if err == nil {
			fmt.Printf("samples (most recent first): %v\n", values)
			if s := adaptive.SmoothWindow(values, firstOrNil(values)); s != nil {
				fmt.Printf("smoothed: %.2f (open at >= %.2f)\n", *s, openDistance)
			} else {
				fmt.Println("smoothed: no data")
			}
		}
	case "decide":
		err = decide(dbPath, defaults, historyWindow, limit, temp, hum, window, last)
	case "insert-reading":
		err = db.InsertReadingCLI(dbPath, model.SensorReading{
			Timestamp:   time.Now(),
			Temperature: model.Float(temp),
			Humidity:    model.Float(hum),
			Window:      model.Float(window),
		})
	case "prune":
		var n int64
		n, err = db.PruneCLI(dbPath, time.Duration(days)*24*time.Hour)
		if err == nil {
			fmt.Printf("removed %d rows older than %d days\n", n, days)
		}
	case "settings":
		var saved model.Settings
		var ok bool
		saved, ok, err = store.New(settingsFile).Load()
		if err == nil {
			if ok {
				printJSON(saved)
			} else {
				fmt.Println("no saved settings, config file values apply")
			}
		}
	case "install-service":
		err = installService(servicePath, configFile, user)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

// decide runs one decision cycle against the stored history without publishing.
func decide(dbPath string, defaults adaptive.Defaults, historyWindow time.Duration, limit int, temp, hum, window float64, last string) error {
	lastCmd, err := model.ParseCommand(last)
	if err != nil {
		return err
	}
	rows, err := db.RecentReadingsCLI(dbPath, historyWindow)
	if err != nil {
		return err
	}
	values, err := db.RecentWindowValuesCLI(dbPath, limit)
	if err != nil {
		return err
	}

	th := adaptive.EstimateThresholds(rows, defaults)
	// The reading is not stored, so it leads the samples here.
	samples := append([]float64{window}, values...)
	if len(samples) > limit {
		samples = samples[:limit]
	}
	smoothed := adaptive.SmoothWindow(samples, model.Float(window))
	engine := decision.Engine{HysteresisOffset: decision.DefaultHysteresisOffset}
	res := engine.Decide(model.Float(temp), model.Float(hum), smoothed, th, lastCmd.State())

	printJSON(map[string]any{
		"thresholds":      th,
		"smoothed_window": smoothed,
		"decision":        res,
	})
	return nil
}

func installService(path, configFile, user string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	dir := filepath.Dir(exe)
	configPath, err := filepath.Abs(configFile)
	if err != nil {
		return err
	}
	return startup.InstallService(path, startup.Service{
		User:       user,
		WorkDir:    dir,
		Binary:     filepath.Join(dir, "heater-controller"),
		ConfigFile: configPath,
	})
}

func firstOrNil(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	return model.Float(values[0])
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
