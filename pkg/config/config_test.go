package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

var errNoName = errors.New("name is required")

func (s *sample) Validate() error {
	if s.Name == "" {
		return errNoName
	}
	return nil
}

func TestParse_ExpandsEnvKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "quarry")
	s := sample{Port: 8080}
	if err := Parse([]byte("name: ${SAMPLE_NAME}\n"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "quarry" || s.Port != 8080 {
		t.Errorf("got %+v", s)
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	var s sample
	err := Parse([]byte("name: x\nprot: 1\n"), &s)
	if err == nil || !strings.Contains(err.Error(), "prot") {
		t.Fatalf("err = %v", err)
	}
}

func TestParse_RunsValidator(t *testing.T) {
	var s sample
	if err := Parse([]byte("port: 1\n"), &s); !errors.Is(err, errNoName) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var s sample
	err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}
