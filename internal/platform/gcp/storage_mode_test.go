package gcp

import "testing"

func TestResolveStorageConfigFromEnv(t *testing.T) {
	cases := []struct {
		name     string
		mode     string
		host     string
		want     StorageMode
		wantFail bool
	}{
		{name: "default", want: StorageModeGCS},
		{name: "explicit gcs ignores host", mode: "gcs", host: "http://fake-gcs:4443", want: StorageModeGCS},
		{name: "host implies emulator", host: "http://fake-gcs:4443/", want: StorageModeGCSEmulator},
		{name: "explicit emulator", mode: "GCS_EMULATOR", host: "http://fake-gcs:4443", want: StorageModeGCSEmulator},
		{name: "emulator without host", mode: "gcs_emulator", wantFail: true},
		{name: "emulator bad host", mode: "gcs_emulator", host: "fake-gcs", wantFail: true},
		{name: "unknown mode", mode: "s3", wantFail: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
			t.Setenv("STORAGE_EMULATOR_HOST", tc.host)
			cfg, err := ResolveStorageConfigFromEnv()
			if tc.wantFail {
				if err == nil {
					t.Fatalf("want error got cfg=%+v", cfg)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveStorageConfigFromEnv: %v", err)
			}
			if cfg.Mode != tc.want {
				t.Fatalf("mode: want=%q got=%q", tc.want, cfg.Mode)
			}
		})
	}
}

func TestContentTypeForKey(t *testing.T) {
	if got := contentTypeForKey("exports/a.zip"); got != "application/zip" {
		t.Fatalf("zip: want=application/zip got=%q", got)
	}
	if got := contentTypeForKey("knowledge/guide.MD"); got != "text/markdown; charset=utf-8" {
		t.Fatalf("md: got=%q", got)
	}
	if got := contentTypeForKey("x.bin"); got != "" {
		t.Fatalf("unknown: want empty got=%q", got)
	}
}
