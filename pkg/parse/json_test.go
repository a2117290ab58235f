package parse

import (
	"strings"
	"testing"
)

func TestJSONRoundTrip(t *testing.T) {
	codes := []string{
		"volume list size>=1g | search name==foo | limit 5",
		"pool create tank disks=da0,da1",
		"x = [1, 2.5, \"three\", true, none]",
		"x = {a: 1, b: 2}",
		"if (x == 1) { echo a } else { echo b }",
		"for (v in ${vols}) { volume delete ${v} }",
		"function add(a, b) { return a + b }",
		"volume list > out.txt",
		"alias st `pool status`",
		"!ls /tmp",
	}
	for _, code := range codes {
		stmts, err := Parse(Source{Name: "[test]", Code: code}, ParseOpts{})
		if err != nil {
			t.Errorf("Parse(%q) -> error %v", code, err)
			continue
		}
		data, err := ProgramToJSON(stmts)
		if err != nil {
			t.Errorf("ProgramToJSON(%q) -> error %v", code, err)
			continue
		}
		decoded, err := ProgramFromJSON(data)
		if err != nil {
			t.Errorf("ProgramFromJSON(%q) -> error %v", data, err)
			continue
		}
		// Decoded trees have no positions, so compare the re-encoding.
		data2, err := ProgramToJSON(decoded)
		if err != nil {
			t.Errorf("ProgramToJSON(decode of %q) -> error %v", code, err)
			continue
		}
		if string(data) != string(data2) {
			t.Errorf("JSON round trip of %q changed the tree:\nbefore %s\nafter  %s",
				code, data, data2)
		}
		// And the decoded tree must render back to working source.
		rendered := UnparseProgram(decoded)
		if _, err := Parse(Source{Name: "[reparse]", Code: rendered}, ParseOpts{}); err != nil {
			t.Errorf("decoded tree of %q renders to unparsable %q: %v", code, rendered, err)
		}
	}
}

func TestToJSON_Shape(t *testing.T) {
	stmts, err := Parse(Source{Name: "[test]", Code: "volume list | search name==foo"}, ParseOpts{})
	if err != nil {
		t.Fatalf("Parse -> error %v", err)
	}
	data, err := ToJSON(stmts[0])
	if err != nil {
		t.Fatalf("ToJSON -> error %v", err)
	}
	for _, want := range []string{
		`"type":"PipeExpr"`,
		`"type":"CommandCall"`,
		`"type":"BinaryParameter"`,
		`"op":"=="`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("encoding %s does not contain %s", data, want)
		}
	}
}

func TestFromJSON_Literals(t *testing.T) {
	for _, tc := range []struct {
		json string
		want string
	}{
		{`{"type":"Literal","kind":"int","value":5}`, "5"},
		{`{"type":"Literal","kind":"float","value":2.5}`, "2.5"},
		{`{"type":"Literal","kind":"str","value":"a"}`, `"a"`},
		{`{"type":"Literal","kind":"bool","value":true}`, "true"},
		{`{"type":"Literal","kind":"none"}`, "none"},
		{`{"type":"Symbol","name":"tank"}`, "tank"},
	} {
		n, err := FromJSON([]byte(tc.json))
		if err != nil {
			t.Errorf("FromJSON(%s) -> error %v", tc.json, err)
			continue
		}
		if got := UnparseOneLine(n); got != tc.want {
			t.Errorf("FromJSON(%s) unparses to %q, want %q", tc.json, got, tc.want)
		}
	}
}

func TestFromJSON_Errors(t *testing.T) {
	for _, bad := range []string{
		`{"type":"NoSuchNode"}`,
		`{"type":"Literal","kind":"frob","value":1}`,
		`{"type":"Literal","kind":"int","value":"x"}`,
		`{"type":"Symbol"}`,
		`[1, 2]`,
	} {
		if _, err := FromJSON([]byte(bad)); err == nil {
			t.Errorf("FromJSON(%s) -> nil error, want an error", bad)
		}
	}
}
