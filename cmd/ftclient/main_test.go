package main

import "testing"

func TestParseArgsList(t *testing.T) {
	req, err := parseArgs([]string{"localhost", "9100", "-l", "9101"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.host != "localhost" || req.serverPort != 9100 || req.command != "-l" || req.dataPort != 9101 {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestParseArgsGet(t *testing.T) {
	req, err := parseArgs([]string{"localhost", "9100", "-g", "a.txt", "9101"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.filename != "a.txt" {
		t.Fatalf("filename=%q", req.filename)
	}
}

func TestParseArgsRejections(t *testing.T) {
	cases := [][]string{
		{},
		{"localhost"},
		{"localhost", "9100", "-l"},
		{"localhost", "9100", "-g", "9101"},
		{"localhost", "9100", "-x", "9101"},
		{"localhost", "abc", "-l", "9101"},
		{"localhost", "9100", "-l", "99"},
		{"localhost", "9100", "-l", "9100"},
		{"localhost", "9100", "-l", "extra", "9101", "late"},
	}
	for _, args := range cases {
		if _, err := parseArgs(args); err == nil {
			t.Fatalf("args %v should be rejected", args)
		}
	}
}
