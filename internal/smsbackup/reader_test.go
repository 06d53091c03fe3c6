package smsbackup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXML = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<smses count="4">
  <sms protocol="0" address="VM-HDFCBK" date="1705311000000" type="1" body="Rs.500 debited from a/c for SWIGGY BANGALORE on 01-01-24. Ref No 123456789" read="1" />
  <sms protocol="0" address="+919800000000" date="1705311100000" type="2" body="sent by me" read="1" />
  <sms protocol="0" address="AD-SHOPZ" date="not-a-date" type="1" body="Get 50% off today!" read="1" />
  <sms protocol="0" address="JM-PAYAPP" date="1705311200000" type="1" body="INR 250.00 paid to CHAI POINT &amp; CO" read="1" />
</smses>`

const sampleJSONL = `{"sender":"VM-HDFCBK","body":"Rs.500 debited","timestamp":1705311000000}

{"sender":"JM-PAYAPP","body":"INR 250.00 paid","timestamp":1705311200000}
`

func TestReadXML(t *testing.T) {
	msgs, err := ReadXML(strings.NewReader(sampleXML))
	require.NoError(t, err)

	assert.Equal(t, []model.SMS{
		{
			Sender:    "VM-HDFCBK",
			Body:      "Rs.500 debited from a/c for SWIGGY BANGALORE on 01-01-24. Ref No 123456789",
			Timestamp: 1705311000000,
		},
		{Sender: "JM-PAYAPP", Body: "INR 250.00 paid to CHAI POINT & CO", Timestamp: 1705311200000},
	}, msgs)
}

func TestReadXML_Malformed(t *testing.T) {
	_, err := ReadXML(strings.NewReader(`<smses><sms address="X" date="1"`))
	assert.Error(t, err)
}

func TestReadJSONLines(t *testing.T) {
	msgs, err := ReadJSONLines(strings.NewReader(sampleJSONL))
	require.NoError(t, err)

	assert.Equal(t, []model.SMS{
		{Sender: "VM-HDFCBK", Body: "Rs.500 debited", Timestamp: 1705311000000},
		{Sender: "JM-PAYAPP", Body: "INR 250.00 paid", Timestamp: 1705311200000},
	}, msgs)
}

func TestReadJSONLines_ReportsLine(t *testing.T) {
	_, err := ReadJSONLines(strings.NewReader("{\"sender\":\"A\"}\n{broken\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		wantErr error
		name    string
		path    string
		head    string
		want    Format
	}{
		{name: "xml extension", path: "backup.XML", want: FormatXML},
		{name: "jsonl extension", path: "dump.jsonl", want: FormatJSONLines},
		{name: "ndjson extension", path: "dump.ndjson", want: FormatJSONLines},
		{name: "sniff xml", path: "dump.txt", head: "\n  <?xml version='1.0'?>", want: FormatXML},
		{name: "sniff json", path: "dump", head: `{"sender":"A"}`, want: FormatJSONLines},
		{name: "unknown", path: "dump.csv", head: "sender,body", wantErr: common.ErrUnknownFormat},
		{name: "empty", path: "dump", head: "", wantErr: common.ErrUnknownFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.path, []byte(tt.head))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	xmlPath := filepath.Join(dir, "sms-backup")
	require.NoError(t, os.WriteFile(xmlPath, []byte(sampleXML), 0o600))
	msgs, err := ReadFile(xmlPath)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	jsonPath := filepath.Join(dir, "dump.jsonl")
	require.NoError(t, os.WriteFile(jsonPath, []byte(sampleJSONL), 0o600))
	msgs, err = ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	_, err = ReadFile(filepath.Join(dir, "missing.xml"))
	assert.Error(t, err)
}

func TestFilter_Apply(t *testing.T) {
	base := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	msgs := []model.SMS{
		{Sender: "VM-HDFCBK", Body: "a", Timestamp: base.UnixMilli()},
		{Sender: "VM-HDFCBK", Body: "a", Timestamp: base.UnixMilli()},
		{Sender: "JM-PAYAPP", Body: "b", Timestamp: base.Add(time.Hour).UnixMilli()},
		{Sender: "vm-hdfcbk", Body: "c", Timestamp: base.Add(-time.Hour).UnixMilli()},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "dedupes only", filter: Filter{}, want: []string{"a", "b", "c"}},
		{name: "sender is case-insensitive", filter: Filter{Sender: "VM-HDFCBK"}, want: []string{"a", "c"}},
		{name: "since", filter: Filter{Since: base}, want: []string{"a", "b"}},
		{name: "both", filter: Filter{Sender: "vm-hdfcbk", Since: base}, want: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var bodies []string
			for _, msg := range tt.filter.Apply(msgs) {
				bodies = append(bodies, msg.Body)
			}
			assert.Equal(t, tt.want, bodies)
		})
	}
}
