// Command mp4mux multiplexes one or more pre-encoded elementary
// streams, described by a YAML config file, into a new MP4.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gobmff/bmff/bmffapi"
	"gopkg.in/yaml.v2"
)

// trackConfig describes one input elementary stream track. Each file
// is imported as a single access unit spanning the whole track
// duration; this tool demonstrates wiring bmffapi.MuxSamples end to
// end rather than acting as a real elementary-stream demuxer.
type trackConfig struct {
	File        string `yaml:"file"`
	Codec       string `yaml:"codec"`
	Timescale   uint32 `yaml:"timescale"`
	Duration    uint32 `yaml:"duration"`
	HandlerType string `yaml:"handlerType"`
}

type muxConfig struct {
	Output           string        `yaml:"output"`
	Brand            string        `yaml:"brand"`
	FastStart        bool          `yaml:"fastStart"`
	ChunkDuration    uint32        `yaml:"chunkDuration"`
	ChunkByteCeiling uint32        `yaml:"chunkByteCeiling"`
	Tracks           []trackConfig `yaml:"tracks"`
}

func main() {
	configPath := flag.String("config", "", "path to a YAML mux config")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: mp4mux -config config.yaml")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (muxConfig, error) {
	var cfg muxConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func run(cfg muxConfig) error {
	if len(cfg.Tracks) == 0 {
		return fmt.Errorf("config has no tracks")
	}

	sources := make([]bmffapi.SampleSource, len(cfg.Tracks))
	for i, tc := range cfg.Tracks {
		data, err := os.ReadFile(tc.File)
		if err != nil {
			return fmt.Errorf("reading track %d: %w", i, err)
		}
		var handler [4]byte
		copy(handler[:], tc.HandlerType)
		sources[i] = &wholeFileSource{
			info: bmffapi.SampleSourceInfo{
				Codec:       tc.Codec,
				Timescale:   tc.Timescale,
				HandlerType: handler,
			},
			data:     data,
			duration: tc.Duration,
		}
	}

	out, err := os.Create(cfg.Output)
	if err != nil {
		return err
	}
	defer out.Close()

	var brand [4]byte
	copy(brand[:], cfg.Brand)

	return bmffapi.MuxSamples(out, sources, bmffapi.MuxOptions{
		MajorBrand:       brand,
		ChunkDuration:    cfg.ChunkDuration,
		ChunkByteCeiling: cfg.ChunkByteCeiling,
		FastStart:        cfg.FastStart,
	})
}

// wholeFileSource hands its entire file contents over as one sample,
// then reports io.EOF, implementing bmffapi.SampleSource.
type wholeFileSource struct {
	info     bmffapi.SampleSourceInfo
	data     []byte
	duration uint32
	done     bool
}

func (s *wholeFileSource) Info() bmffapi.SampleSourceInfo { return s.info }

func (s *wholeFileSource) NextSample() (bmffapi.Sample, error) {
	if s.done {
		return bmffapi.Sample{}, io.EOF
	}
	s.done = true
	return bmffapi.Sample{
		Data:     s.data,
		Duration: s.duration,
		Sync:     true,
	}, nil
}
