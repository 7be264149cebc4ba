package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(&out, []string{"version"}); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Errorf("Expected version in output, got %q", out.String())
	}
}

func TestRun_NoCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(&out, nil)
	if err == nil {
		t.Fatal("Expected error for missing command")
	}
	exitErr, ok := err.(*ExitError)
	if !ok {
		t.Fatalf("Expected ExitError, got %T", err)
	}
	if exitErr.Code != 2 {
		t.Errorf("Expected exit code 2, got %d", exitErr.Code)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Error("Expected usage text to be printed")
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(&out, []string{"frobnicate"})
	if err == nil {
		t.Fatal("Expected error for unknown command")
	}
	if !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("Expected command name in error, got %v", err)
	}
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	if err := run(&out, []string{"--help"}); err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, cmd := range []string{"run", "eval", "serve", "version"} {
		if !strings.Contains(out.String(), cmd) {
			t.Errorf("Expected %s in usage output", cmd)
		}
	}
}

func TestRunWorkflow_RequiresConfigFile(t *testing.T) {
	var out bytes.Buffer
	err := run(&out, []string{"run", "--input", "hello"})
	if err == nil {
		t.Fatal("Expected error without --config_file")
	}
	if !strings.Contains(err.Error(), "--config_file") {
		t.Errorf("Expected --config_file in error, got %v", err)
	}
}

func TestRunWorkflow_RequiresInput(t *testing.T) {
	var out bytes.Buffer
	err := run(&out, []string{"run", "--config_file", "workflow.yml"})
	if err == nil {
		t.Fatal("Expected error without --input")
	}
	if !strings.Contains(err.Error(), "--input") {
		t.Errorf("Expected --input in error, got %v", err)
	}
}

func TestRunEval_RequiresConfigFile(t *testing.T) {
	var out bytes.Buffer
	if err := run(&out, []string{"eval"}); err == nil {
		t.Error("Expected error without --config_file")
	}
}

func TestRunServe_RequiresConfigFile(t *testing.T) {
	var out bytes.Buffer
	if err := run(&out, []string{"serve"}); err == nil {
		t.Error("Expected error without --config_file")
	}
}
