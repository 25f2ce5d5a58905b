package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"sensorstream/internal/common/database"
	"sensorstream/internal/common/logger"
	"sensorstream/internal/config"
	"sensorstream/internal/recordings"
	"sensorstream/internal/repository"
	"sensorstream/internal/statusclient"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	cfg, err := config.Load(envFileFromArgs(args[1:]))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch args[0] {
	case "list":
		return runList(cfg, args[1:])
	case "info":
		return runInfo(args[1:])
	case "wav":
		return runWAV(args[1:])
	case "export":
		return runExport(cfg, args[1:])
	case "orientation":
		return runOrientation(cfg, args[1:])
	case "status":
		return runStatus(cfg, args[1:])
	case "catalog":
		return runCatalog(cfg, args[1:])
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: sensorstream-recordings <subcommand> [flags]

Subcommands:
  list         List audio files and sensor logs in the recordings directory
  info         Show length and level statistics of a PCM file
  wav          Convert a PCM file to WAV
  export       Export a sensor log to an xlsx spreadsheet
  orientation  Show the latest motion readings and pitch/roll
  status       Query a running receiver
  catalog      List files recorded in the Postgres catalog

Run 'sensorstream-recordings <subcommand> --help' for subcommand flags.
`)
}

// envFileFromArgs finds --env-file before flags are parsed, since the
// environment supplies the flag defaults.
func envFileFromArgs(args []string) string {
	for i, arg := range args {
		if value, ok := strings.CutPrefix(arg, "--env-file="); ok {
			return value
		}
		if arg == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ".env"
}

func newFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ExitOnError)
	flags.String("env-file", ".env", "optional .env file loaded before the environment")
	return flags
}

func newLogger(cfg *config.Config) *zap.Logger {
	zlog, err := logger.NewLogger(cfg.Log.Level, "console", "sensorstream-recordings")
	if err != nil {
		return zap.NewNop()
	}
	return zlog
}

func runList(cfg *config.Config, args []string) error {
	flags := newFlagSet("list")
	dir := flags.String("dir", cfg.Receiver.RecordingsDir, "recordings directory")
	flags.Parse(args)

	audio, err := recordings.ListAudio(*dir)
	if err != nil {
		return err
	}
	logs, err := recordings.ListSensorLogs(*dir)
	if err != nil {
		return err
	}
	unknown, err := recordings.ListUnknown(*dir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AUDIO\tSIZE\tDURATION")
	for _, f := range audio {
		fmt.Fprintf(w, "%s\t%d\t%.2fs\n", f.Name, f.Size, f.Duration.Seconds())
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SENSOR LOG\tSIZE\tMODIFIED")
	for _, f := range logs {
		fmt.Fprintf(w, "%s\t%d\t%s\n", f.Name, f.Size, f.ModTime.Format(time.DateTime))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(unknown) > 0 {
		fmt.Printf("\n%d unrecognized message(s) stored as unknown_* files\n", len(unknown))
	}
	return nil
}

func runInfo(args []string) error {
	flags := newFlagSet("info")
	flags.Parse(args)
	if flags.NArg() != 1 {
		flags.Usage()
		return fmt.Errorf("exactly one PCM file is required")
	}

	path := flags.Arg(0)
	stats, err := recordings.InspectPCM(path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "File:\t%s\n", path)
	fmt.Fprintf(w, "Format:\t%d Hz, %d channel, %d-bit PCM\n", recordings.SampleRate, recordings.Channels, recordings.BitsPerSample)
	fmt.Fprintf(w, "Size:\t%d bytes\n", stats.Bytes)
	fmt.Fprintf(w, "Samples:\t%d\n", stats.Samples)
	fmt.Fprintf(w, "Duration:\t%.2fs\n", stats.Duration.Seconds())
	fmt.Fprintf(w, "Peak:\t%d\n", stats.Peak)
	fmt.Fprintf(w, "RMS level:\t%.2f dBFS\n", stats.DBFS)
	fmt.Fprintf(w, "Clipping:\t%t\n", stats.Clipping)
	fmt.Fprintf(w, "Silent:\t%t\n", stats.Silent)
	return w.Flush()
}

func runWAV(args []string) error {
	flags := newFlagSet("wav")
	out := flags.StringP("output", "o", "", "output file (default: input with .wav extension)")
	flags.Parse(args)
	if flags.NArg() != 1 {
		flags.Usage()
		return fmt.Errorf("exactly one PCM file is required")
	}

	in := flags.Arg(0)
	if *out == "" {
		*out = strings.TrimSuffix(in, filepath.Ext(in)) + ".wav"
	}
	n, err := recordings.ConvertToWAV(in, *out)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%.2fs of audio)\n", *out, recordings.PCMDuration(n).Seconds())
	return nil
}

func resolveLog(dir, log string) (string, error) {
	if log != "" {
		return log, nil
	}
	return recordings.LatestSensorLog(dir)
}

func runExport(cfg *config.Config, args []string) error {
	flags := newFlagSet("export")
	dir := flags.String("dir", cfg.Receiver.RecordingsDir, "recordings directory")
	log := flags.String("log", "", "sensor log to export (default: the newest in --dir)")
	out := flags.StringP("output", "o", "", "output xlsx file (required)")
	flags.Parse(args)
	if *out == "" {
		flags.Usage()
		return fmt.Errorf("--output is required")
	}

	path, err := resolveLog(*dir, *log)
	if err != nil {
		return err
	}
	lines, skipped, err := recordings.ReadSensorLog(path)
	if err != nil {
		return err
	}
	if err := recordings.ExportSensorLogXLSX(lines, *out); err != nil {
		return err
	}
	fmt.Printf("Exported %d readings from %s to %s", len(lines), path, *out)
	if skipped > 0 {
		fmt.Printf(" (%d unreadable lines skipped)", skipped)
	}
	fmt.Println()
	return nil
}

func runOrientation(cfg *config.Config, args []string) error {
	flags := newFlagSet("orientation")
	dir := flags.String("dir", cfg.Receiver.RecordingsDir, "recordings directory")
	log := flags.String("log", "", "sensor log to read (default: the newest in --dir)")
	flags.Parse(args)

	path, err := resolveLog(*dir, *log)
	if err != nil {
		return err
	}
	lines, _, err := recordings.ReadSensorLog(path)
	if err != nil {
		return err
	}

	o := recordings.LatestOrientation(lines)
	fmt.Printf("Source: %s\n", path)
	if a := o.Accelerometer; a != nil {
		fmt.Printf("Accel: X=%.1f, Y=%.1f, Z=%.1f (Mag=%.1f) at %s\n", a.X, a.Y, a.Z, a.Magnitude(), a.Timestamp)
		fmt.Printf("Pitch: %.1f°  Roll: %.1f°\n", o.Pitch, o.Roll)
	} else {
		fmt.Println("Accel: no readings")
	}
	if g := o.Gyroscope; g != nil {
		fmt.Printf("Gyro: X=%.1f, Y=%.1f, Z=%.1f at %s\n", g.X, g.Y, g.Z, g.Timestamp)
	} else {
		fmt.Println("Gyro: no readings")
	}
	return nil
}

func runStatus(cfg *config.Config, args []string) error {
	flags := newFlagSet("status")
	defaultURL := "http://127.0.0.1:" + strconv.Itoa(cfg.Receiver.Port)
	url := flags.String("url", defaultURL, "receiver base URL")
	timeout := flags.Duration("timeout", 5*time.Second, "request timeout")
	flags.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog := newLogger(cfg)
	defer zlog.Sync()

	status, err := statusclient.NewClient(*url, *timeout, zlog).Status(ctx)
	if status == nil {
		return err
	}

	fmt.Printf("Status: %s (up since %s)\n", status.Status, status.StartedAt.Format(time.DateTime))
	fmt.Printf("Sensor log: %s\n", status.SensorLog)
	fmt.Printf("Frames: %d (sensor %d, audio %d, unrecognized %d, audio dropped %d)\n",
		status.Metrics.FramesReceived, status.Metrics.SensorReadings, status.Metrics.AudioChunks,
		status.Metrics.Unrecognized, status.Metrics.AudioDropped)
	for name, state := range status.Services {
		fmt.Printf("Backend %s: %s\n", name, state)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "\n%d live connection(s)\n", status.ConnectionCount)
	if status.ConnectionCount > 0 {
		fmt.Fprintln(w, "ID\tREMOTE ADDR\tCONNECTED")
		for _, c := range status.Connections {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.RemoteAddr, c.ConnectedAt.Format(time.DateTime))
		}
	}
	if flushErr := w.Flush(); flushErr != nil {
		return flushErr
	}
	return err
}

func runCatalog(cfg *config.Config, args []string) error {
	flags := newFlagSet("catalog")
	kind := flags.String("kind", "", "only list files of this kind (sensor_log, audio, unknown)")
	limit := flags.Int("limit", 50, "maximum rows, 0 for all")
	flags.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)

	zlog := newLogger(cfg)
	defer zlog.Sync()

	records, err := repository.NewRecordingIndex(db, zlog).ListFiles(ctx, *kind, *limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No cataloged files")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tKIND\tCONNECTION\tREMOTE ADDR\tCREATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.FileName, r.Kind, r.ConnectionID, r.RemoteAddr, r.CreatedAt.Format(time.DateTime))
	}
	return w.Flush()
}
