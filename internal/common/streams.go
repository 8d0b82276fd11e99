package common

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// StreamConfig names one realtime subscription. Filter may contain the
// {user} placeholder, replaced with the session's user id at subscribe
// time.
type StreamConfig struct {
	Table  string `yaml:"table"`
	Filter string `yaml:"filter"`
}

type StreamsConfig struct {
	Streams []StreamConfig `yaml:"streams"`
}

// DefaultStreams is the built-in subscription set: messages keep the
// conversation list fresh, friends keep the graph fresh, notifications
// feed the incremental patcher. Realtime filters match one column, so
// the two-sided tables need one subscription per direction: conversation
// pairs are stored lexicographically (the user may be either slot), and
// a friend edge changes state for the requester as well as the target.
func DefaultStreams() []StreamConfig {
	return []StreamConfig{
		{Table: "messages", Filter: "receiver_id=eq.{user}"},
		{Table: "conversations", Filter: "user1_id=eq.{user}"},
		{Table: "conversations", Filter: "user2_id=eq.{user}"},
		{Table: "friends", Filter: "requester_id=eq.{user}"},
		{Table: "friends", Filter: "target_id=eq.{user}"},
		{Table: "notifications", Filter: "profile_id=eq.{user}"},
	}
}

// LoadStreamConfig reads a YAML stream-subscription file.
func LoadStreamConfig(streamsFile string) ([]StreamConfig, error) {
	var streamsPath string
	if filepath.IsAbs(streamsFile) {
		streamsPath = streamsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		streamsPath = filepath.Join(wd, streamsFile)
	}

	data, err := os.ReadFile(streamsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", streamsFile, err)
	}

	var config StreamsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", streamsFile, err)
	}

	for i, stream := range config.Streams {
		if stream.Table == "" {
			return nil, fmt.Errorf("stream at index %d missing table", i)
		}
	}

	return config.Streams, nil
}
