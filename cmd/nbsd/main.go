package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"example.com/nbsgate/internal/common"
	"example.com/nbsgate/internal/frames"
	"example.com/nbsgate/internal/ingest"
)

type logConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type config struct {
	// Inputs are the feed connections to merge; "-" reads stdin.
	Inputs []string `yaml:"inputs"`
	// Output receives the ordered frame stream; "-" writes stdout.
	Output string `yaml:"output"`
	// BufferFrames bounds the reordering buffer.
	BufferFrames int `yaml:"bufferFrames"`
	// RevealTimeout is how long, in seconds (fractional allowed), a
	// buffered frame waits for a missing predecessor.
	RevealTimeout float64 `yaml:"revealTimeout"`
	// StatsInterval is how often, in seconds, ingest counters are
	// logged; 0 disables the periodic line.
	StatsInterval float64   `yaml:"statsInterval"`
	Logs          logConfig `yaml:"logs"`
}

// loadConfig reads the YAML configuration and fills in defaults. A
// missing file is not an error; the defaults stand alone and flags can
// override them.
func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, err
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}
	if len(cfg.Inputs) == 0 {
		cfg.Inputs = []string{"-"}
	}
	if cfg.Output == "" {
		cfg.Output = "-"
	}
	if cfg.BufferFrames <= 0 {
		cfg.BufferFrames = 1000
	}
	if cfg.RevealTimeout <= 0 {
		cfg.RevealTimeout = 1.0
	}
	if cfg.StatsInterval < 0 {
		cfg.StatsInterval = 0
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(".", "logs")
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

func setupLogging(cfg config) error {
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logFile := filepath.Join(cfg.Logs.Directory, "nbsd.log")
	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	sink := io.MultiWriter(os.Stderr, rotator)
	log.SetOutput(sink)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	common.SetLogOutput(sink)
	return nil
}

func openSources(paths []string) ([]ingest.Source, func(), error) {
	var sources []ingest.Source
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	for _, p := range paths {
		if p == "-" {
			sources = append(sources, ingest.Source{Name: "stdin", Reader: os.Stdin})
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, f)
		sources = append(sources, ingest.Source{Name: p, Reader: f})
	}
	return sources, closeAll, nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	inputs := flag.String("in", "", "comma-separated input paths (overrides config)")
	output := flag.String("out", "", "output path for the ordered frame stream (overrides config)")
	timeout := flag.Float64("timeout", 0, "reveal timeout in seconds (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *inputs != "" {
		cfg.Inputs = strings.Split(*inputs, ",")
	}
	if *output != "" {
		cfg.Output = *output
	}
	if *timeout > 0 {
		cfg.RevealTimeout = *timeout
	}
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("setup logging: %v", err)
	}

	sources, closeSources, err := openSources(cfg.Inputs)
	if err != nil {
		log.Fatalf("open inputs: %v", err)
	}
	defer closeSources()

	out := os.Stdout
	if cfg.Output != "-" {
		out, err = os.Create(cfg.Output)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer out.Close()
	}

	metrics := common.NewMetrics()
	metrics.Start()
	pipeline := ingest.NewPipeline(ingest.Options{
		MaxFrames: cfg.BufferFrames,
		Timeout:   time.Duration(cfg.RevealTimeout * float64(time.Second)),
		Metrics:   metrics,
	})

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		log.Printf("shutdown requested, draining buffer")
		pipeline.Buffer().Close()
	}()

	if cfg.StatsInterval > 0 {
		interval := time.Duration(cfg.StatsInterval * float64(time.Second))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		go func() {
			for range ticker.C {
				s := metrics.Snapshot()
				common.Logf("frames=%d bytes=%s resyncs=%d duplicates=%d late=%d dropped=%d buffered=%d",
					s.Frames, common.FormatBytes(s.Bytes), s.Resyncs, s.Duplicates, s.Late, s.Dropped,
					pipeline.Buffer().Len())
			}
		}()
	}

	log.Printf("nbsd ingesting %d source(s), timeout %.3fs, buffer %d frames",
		len(sources), cfg.RevealTimeout, cfg.BufferFrames)

	err = pipeline.Run(sources, func(frame frames.Frame) error {
		_, werr := out.Write(frame.Data)
		return werr
	})
	metrics.Stop()
	if err != nil {
		log.Fatalf("ingest: %v", err)
	}

	s := metrics.Snapshot()
	log.Printf("nbsd stopped: frames=%d bytes=%s resyncs=%d duplicates=%d late=%d dropped=%d in %s",
		s.Frames, common.FormatBytes(s.Bytes), s.Resyncs, s.Duplicates, s.Late, s.Dropped,
		s.Duration.Round(time.Millisecond))
}
