package cliconfig

import (
	"reflect"
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"DUALCAP_OUTPUT_DIR":      "/data",
				"DUALCAP_SERIAL_PORT":     "/dev/ttyACM0",
				"DUALCAP_PORT_MATCH":      "CP210x,ESP32",
				"DUALCAP_BAUD":            "921600",
				"DUALCAP_FLUSH_INTERVAL":  "250ms",
				"DUALCAP_FILE_SIZE_LIMIT": "1048576",
				"DUALCAP_AUDIO_DEVICE":    "-1",
				"DUALCAP_NO_AUDIO":        "true",
			},
			changed: map[string]bool{},
			initial: Config{AudioDevice: 3},
			expected: Config{
				OutputDir:     "/data",
				SerialPort:    "/dev/ttyACM0",
				PortMatch:     []string{"CP210x", "ESP32"},
				Baud:          921600,
				FlushInterval: 250 * time.Millisecond,
				FileSizeLimit: 1 << 20,
				AudioDevice:   -1,
				NoAudio:       true,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"DUALCAP_SERIAL_PORT":  "/dev/ttyUSB0",
				"DUALCAP_AUDIO_DEVICE": "2",
				"DUALCAP_SAMPLE_RATE":  "48000",
			},
			changed:  map[string]bool{"serial-port": true, "audio-device": true},
			initial:  Config{SerialPort: "COM5", AudioDevice: 1},
			expected: Config{SerialPort: "COM5", AudioDevice: 1, SampleRate: 48000},
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"DUALCAP_STATS_INTERVAL": "soon"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"DUALCAP_CHUNK_SAMPLES": "many"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid device index",
			envVars: map[string]string{"DUALCAP_AUDIO_DEVICE": "mic"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:     "handles bool '1' as true",
			envVars:  map[string]string{"DUALCAP_SIMULATE": "1"},
			changed:  map[string]bool{},
			expected: Config{Simulate: true},
		},
		{
			name:     "handles bool 'false' as false",
			envVars:  map[string]string{"DUALCAP_NO_CSI": "false"},
			changed:  map[string]bool{},
			initial:  Config{NoCSI: true},
			expected: Config{NoCSI: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnvConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(cfg, tt.expected) {
				t.Errorf("ApplyEnvConfig() =\n%+v\nwant\n%+v", cfg, tt.expected)
			}
		})
	}
}
