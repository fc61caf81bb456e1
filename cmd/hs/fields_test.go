package main

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSplitField(t *testing.T) {
	tests := []struct {
		in        string
		key, val  string
		wantFound bool
	}{
		{"x=12", "x", "12", true},
		{"msg=a=b", "msg", "a=b", true},
		{"empty=", "empty", "", true},
		{"=value", "", "", false},
		{"novalue", "", "", false},
	}
	for _, tt := range tests {
		k, v, ok := splitField(tt.in)
		if k != tt.key || v != tt.val || ok != tt.wantFound {
			t.Errorf("splitField(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, k, v, ok, tt.key, tt.val, tt.wantFound)
		}
	}
}

func TestFieldValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"hello", "hello"},
		{"", ""},
		{"42", json.Number("42")},
		{"9007199254740993", json.Number("9007199254740993")},
		{"-1.5", json.Number("-1.5")},
		{"true", true},
		{"null", nil},
		{`"quoted"`, "quoted"},
		{`[1,2]`, []any{json.Number("1"), json.Number("2")}},
		{`{"a":1}`, map[string]any{"a": json.Number("1")}},
		{"{broken", "{broken"},
		{"1st place", "1st place"},
	}
	for _, tt := range tests {
		if got := fieldValue(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("fieldValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestParseData(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		fields  []string
		want    map[string]any
		wantErr bool
	}{
		{name: "Nothing", want: nil},
		{name: "Object", raw: `{"x":1}`, want: map[string]any{"x": json.Number("1")}},
		{name: "EmptyObject", raw: `{}`, want: map[string]any{}},
		{
			name:   "FieldsOverrideObject",
			raw:    `{"x":1,"y":"a"}`,
			fields: []string{"x=2", "z=zed"},
			want:   map[string]any{"x": json.Number("2"), "y": "a", "z": "zed"},
		},
		{name: "FieldsOnly", fields: []string{"ok=true"}, want: map[string]any{"ok": true}},
		{name: "NotAnObject", raw: `[1]`, wantErr: true},
		{name: "BadJSON", raw: `{`, wantErr: true},
		{name: "BadField", fields: []string{"nokey"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseData(tt.raw, tt.fields)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseData = %#v, want %#v", got, tt.want)
			}
		})
	}
}
