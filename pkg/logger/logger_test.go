package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"error":   logrus.ErrorLevel,
		"WARN":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"info":    logrus.InfoLevel,
		"debug":   logrus.DebugLevel,
		"":        logrus.InfoLevel,
		"bogus":   logrus.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerTagsComponent(t *testing.T) {
	log := New(LoggingConfig{Level: "debug", Format: "json", Component: "pipeline"})
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithField("product_type", "tshirt").Info("processing")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["component"] != "pipeline" {
		t.Fatalf("component = %v, want pipeline", entry["component"])
	}
	if entry["product_type"] != "tshirt" {
		t.Fatalf("product_type = %v, want tshirt", entry["product_type"])
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	log := New(LoggingConfig{Level: "error", Format: "text"})
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info line written at error level: %q", buf.String())
	}
	log.Error("shown")
	if buf.Len() == 0 {
		t.Fatal("error line not written")
	}
}

func TestNamed(t *testing.T) {
	parent := New(LoggingConfig{Level: "info", Format: "json", Component: "runner"})
	var buf bytes.Buffer
	parent.SetOutput(&buf)

	child := parent.Named("factory")
	child.Info("created")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["component"] != "factory" {
		t.Fatalf("component = %v, want factory", entry["component"])
	}
	if child.Component() != "factory" {
		t.Fatalf("Component() = %q", child.Component())
	}
}
