package properties

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testPrefix = "properties:properties_test"

const routingSample = `# routing configuration
connection.address = broker.internal   # primary broker
connection.port = 4222

connection.enabled = true
connection.name = runtime-a
`

func TestParse_ReadsKeysAndValues(t *testing.T) {
	p, err := Parse(strings.NewReader(routingSample))
	if err != nil {
		t.Fatalf("%s - parse failed: %v", testPrefix, err)
	}
	if p.Len() != 4 {
		t.Fatalf("%s - parsed %d properties, want 4", testPrefix, p.Len())
	}

	tests := []struct {
		key  string
		want string
	}{
		{KeyConnectionAddress, "broker.internal"},
		{KeyConnectionPort, "4222"},
		{KeyConnectionEnabled, "true"},
		{KeyConnectionName, "runtime-a"},
	}
	for _, tt := range tests {
		got, ok := p.Get(tt.key)
		if !ok {
			t.Errorf("%s - key %s missing", testPrefix, tt.key)
			continue
		}
		if got != tt.want {
			t.Errorf("%s - %s = %q, want %q", testPrefix, tt.key, got, tt.want)
		}
	}
}

func TestParse_RejectsMalformedLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing equals", "connection.address\n"},
		{"empty key", " = 4222\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.input)); err == nil {
				t.Errorf("%s - %q parsed, want error", testPrefix, tt.input)
			}
		})
	}
}

func TestWriteTo_PreservesCommentsAndOrder(t *testing.T) {
	p, err := Parse(strings.NewReader(routingSample))
	if err != nil {
		t.Fatalf("%s - parse failed: %v", testPrefix, err)
	}

	var out strings.Builder
	if _, err := p.WriteTo(&out); err != nil {
		t.Fatalf("%s - write failed: %v", testPrefix, err)
	}
	got := out.String()

	if !strings.HasPrefix(got, "# routing configuration\n") {
		t.Errorf("%s - leading comment lost:\n%s", testPrefix, got)
	}
	if !strings.Contains(got, "# primary broker") {
		t.Errorf("%s - trailing comment lost:\n%s", testPrefix, got)
	}
	addrLine := strings.Index(got, KeyConnectionAddress)
	nameLine := strings.Index(got, KeyConnectionName)
	if addrLine < 0 || nameLine < 0 || addrLine > nameLine {
		t.Errorf("%s - property order not preserved:\n%s", testPrefix, got)
	}

	// A second read of the serialized form must yield the same properties.
	again, err := Parse(strings.NewReader(got))
	if err != nil {
		t.Fatalf("%s - reparse failed: %v", testPrefix, err)
	}
	for _, key := range p.Keys() {
		want, _ := p.Get(key)
		if v, ok := again.Get(key); !ok || v != want {
			t.Errorf("%s - reparsed %s = %q, want %q", testPrefix, key, v, want)
		}
	}
}

func TestSet_OverwritesInPlace(t *testing.T) {
	p, err := Parse(strings.NewReader(routingSample))
	if err != nil {
		t.Fatalf("%s - parse failed: %v", testPrefix, err)
	}

	p.Set(KeyConnectionPort, "5222")
	p.Set("trace.level", "debug")

	if v, _ := p.Get(KeyConnectionPort); v != "5222" {
		t.Errorf("%s - port = %q after Set, want 5222", testPrefix, v)
	}
	keys := p.Keys()
	if len(keys) != 5 {
		t.Fatalf("%s - %d keys after Set, want 5", testPrefix, len(keys))
	}
	if keys[1] != KeyConnectionPort {
		t.Errorf("%s - overwritten key moved to position of %q", testPrefix, keys[1])
	}
	if keys[4] != "trace.level" {
		t.Errorf("%s - new key not appended, last is %q", testPrefix, keys[4])
	}
}

func TestDel_RemovesLineAndReindexes(t *testing.T) {
	p, err := Parse(strings.NewReader(routingSample))
	if err != nil {
		t.Fatalf("%s - parse failed: %v", testPrefix, err)
	}

	p.Del(KeyConnectionPort)
	if _, ok := p.Get(KeyConnectionPort); ok {
		t.Errorf("%s - deleted key still present", testPrefix)
	}
	if p.Len() != 3 {
		t.Errorf("%s - %d properties after Del, want 3", testPrefix, p.Len())
	}
	// Keys after the removed line must still resolve.
	if v, ok := p.Get(KeyConnectionName); !ok || v != "runtime-a" {
		t.Errorf("%s - key after deleted line resolves to %q/%v", testPrefix, v, ok)
	}

	p.Del("no.such.key")
	if p.Len() != 3 {
		t.Errorf("%s - deleting an absent key changed the set", testPrefix)
	}
}

func TestGetDefault_FallsBack(t *testing.T) {
	p := New()
	p.Set(KeyConnectionAddress, "10.0.0.5")

	if v := p.GetDefault(KeyConnectionAddress, "127.0.0.1"); v != "10.0.0.5" {
		t.Errorf("%s - present key returned default %q", testPrefix, v)
	}
	if v := p.GetDefault(KeyConnectionPort, "4222"); v != "4222" {
		t.Errorf("%s - absent key returned %q, want default", testPrefix, v)
	}
}

func TestParseFile_RoundTripThroughDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.properties")
	if err := os.WriteFile(path, []byte(routingSample), 0o644); err != nil {
		t.Fatalf("%s - writing fixture: %v", testPrefix, err)
	}

	p, err := ParseFile(path)
	if err != nil {
		t.Fatalf("%s - parse failed: %v", testPrefix, err)
	}
	p.Set(KeyConnectionEnabled, "false")

	out := filepath.Join(dir, "routing.out.properties")
	if err := p.WriteFile(out); err != nil {
		t.Fatalf("%s - write failed: %v", testPrefix, err)
	}
	again, err := ParseFile(out)
	if err != nil {
		t.Fatalf("%s - reparse failed: %v", testPrefix, err)
	}
	if v, _ := again.Get(KeyConnectionEnabled); v != "false" {
		t.Errorf("%s - enabled = %q after round trip, want false", testPrefix, v)
	}

	if _, err := ParseFile(filepath.Join(dir, "absent.properties")); err == nil {
		t.Errorf("%s - opening an absent file must fail", testPrefix)
	}
}
