package network

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/railops/dispatchd/core/model"
)

// TopologyFile is the on-disk network definition.
type TopologyFile struct {
	Stations []StationDef `json:"stations" yaml:"stations"`
	Sections []SectionDef `json:"sections" yaml:"sections"`
	// PlatformHeadwayMinutes applies to every platform; defaults to 2.
	PlatformHeadwayMinutes int `json:"platform_headway_minutes" yaml:"platform_headway_minutes"`
}

// StationDef defines a station and its platforms.
type StationDef struct {
	ID        string        `json:"id" yaml:"id"`
	Platforms []PlatformDef `json:"platforms" yaml:"platforms"`
}

// PlatformDef defines one platform. Capacity defaults to 1.
type PlatformDef struct {
	ID       string `json:"id" yaml:"id"`
	Capacity int    `json:"capacity" yaml:"capacity"`
}

// SectionDef defines a track section between two stations.
type SectionDef struct {
	ID             string  `json:"id" yaml:"id"`
	From           string  `json:"from" yaml:"from"`
	To             string  `json:"to" yaml:"to"`
	LengthKM       float64 `json:"length_km" yaml:"length_km"`
	Capacity       int     `json:"capacity" yaml:"capacity"`
	Bidirectional  bool    `json:"bidirectional" yaml:"bidirectional"`
	HeadwayMinutes int     `json:"headway_minutes" yaml:"headway_minutes"`
}

// Load reads a topology file (YAML or JSON by extension) and builds the
// network.
func Load(path string) (*Network, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf TopologyFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &tf)
	case ".json":
		err = json.Unmarshal(b, &tf)
	default:
		return nil, fmt.Errorf("unsupported topology format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", path, err)
	}
	return FromFile(tf)
}

// FromFile builds a network from a parsed topology definition.
func FromFile(tf TopologyFile) (*Network, error) {
	if tf.PlatformHeadwayMinutes <= 0 {
		tf.PlatformHeadwayMinutes = 2
	}
	stations := make([]Station, 0, len(tf.Stations))
	caps := make(map[string]int)
	for _, sd := range tf.Stations {
		st := Station{ID: sd.ID}
		for _, pd := range sd.Platforms {
			st.Platforms = append(st.Platforms, pd.ID)
			if pd.Capacity > 0 {
				caps[pd.ID] = pd.Capacity
			}
		}
		stations = append(stations, st)
	}
	sections := make([]Resource, 0, len(tf.Sections))
	for _, sd := range tf.Sections {
		hw := sd.HeadwayMinutes
		if hw <= 0 {
			hw = 5
		}
		sections = append(sections, Resource{
			ID:            sd.ID,
			From:          sd.From,
			To:            sd.To,
			LengthKM:      sd.LengthKM,
			Capacity:      sd.Capacity,
			Bidirectional: sd.Bidirectional,
			Headway:       time.Duration(hw) * time.Minute,
		})
	}
	return New(stations, sections, caps, time.Duration(tf.PlatformHeadwayMinutes)*time.Minute)
}

// RosterFile is the on-disk initial train roster.
type RosterFile struct {
	Trains []TrainDef `json:"trains" yaml:"trains"`
}

// TrainDef defines one train of the initial roster.
type TrainDef struct {
	ID       string    `json:"id" yaml:"id"`
	Class    string    `json:"class" yaml:"class"`
	SpeedKPH float64   `json:"speed_kph" yaml:"speed_kph"`
	Stops    []StopDef `json:"stops" yaml:"stops"`
}

// StopDef defines a scheduled call.
type StopDef struct {
	Station   string    `json:"station" yaml:"station"`
	Arrival   time.Time `json:"arrival" yaml:"arrival"`
	Departure time.Time `json:"departure" yaml:"departure"`
}

// LoadRoster reads the initial train roster (YAML or JSON by extension).
func LoadRoster(path string) ([]model.Train, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf RosterFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &rf)
	case ".json":
		err = json.Unmarshal(b, &rf)
	default:
		return nil, fmt.Errorf("unsupported roster format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	trains := make([]model.Train, 0, len(rf.Trains))
	for _, td := range rf.Trains {
		cls, err := model.ParsePriorityClass(td.Class)
		if err != nil {
			return nil, fmt.Errorf("train %s: %w", td.ID, err)
		}
		t := model.Train{
			ID:       td.ID,
			Class:    cls,
			SpeedKPH: td.SpeedKPH,
			Status:   model.StatusScheduled,
		}
		for _, sd := range td.Stops {
			t.Route = append(t.Route, model.Stop{Station: sd.Station, Arrival: sd.Arrival, Departure: sd.Departure})
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		trains = append(trains, t)
	}
	return trains, nil
}
