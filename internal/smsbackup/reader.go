// Package smsbackup reads exported message dumps: "SMS Backup & Restore" XML
// files and JSON-lines dumps with one message per line.
package smsbackup

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
)

// Format identifies a dump format.
type Format string

// Supported formats.
const (
	FormatXML       Format = "xml"
	FormatJSONLines Format = "jsonl"
)

// xmlSMS is one <sms> element. Type 1 is an inbox message, 2 a sent one.
type xmlSMS struct {
	Address string `xml:"address,attr"`
	Body    string `xml:"body,attr"`
	Date    string `xml:"date,attr"`
	Type    string `xml:"type,attr"`
}

// jsonSMS is one line of a JSON-lines dump.
type jsonSMS struct {
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// DetectFormat guesses the format from the file extension, then from the
// first non-blank byte of the content.
func DetectFormat(path string, head []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return FormatXML, nil
	case ".jsonl", ".ndjson":
		return FormatJSONLines, nil
	}

	head = bytes.TrimSpace(head)
	switch {
	case bytes.HasPrefix(head, []byte("<")):
		return FormatXML, nil
	case bytes.HasPrefix(head, []byte("{")):
		return FormatJSONLines, nil
	default:
		return "", fmt.Errorf("%w: %s", common.ErrUnknownFormat, path)
	}
}

// ReadFile reads every message from the dump at path.
func ReadFile(path string) ([]model.SMS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open message dump: %w", err)
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read message dump: %w", err)
	}

	format, err := DetectFormat(path, head)
	if err != nil {
		return nil, err
	}

	var msgs []model.SMS
	switch format {
	case FormatXML:
		msgs, err = ReadXML(br)
	default:
		msgs, err = ReadJSONLines(br)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	common.LogDebug("Read message dump", common.Fields{
		"path":     path,
		"format":   string(format),
		"messages": len(msgs),
	})
	return msgs, nil
}

// ReadXML streams <sms> elements from an SMS Backup & Restore export. Sent
// messages and messages with an unreadable date are dropped.
func ReadXML(r io.Reader) ([]model.SMS, error) {
	dec := xml.NewDecoder(r)

	var (
		msgs    []model.SMS
		dropped int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "sms" {
			continue
		}

		var raw xmlSMS
		if err := dec.DecodeElement(&raw, &start); err != nil {
			return nil, fmt.Errorf("failed to parse <sms> element: %w", err)
		}
		if raw.Type == "2" {
			continue
		}

		ts, err := strconv.ParseInt(strings.TrimSpace(raw.Date), 10, 64)
		if err != nil {
			dropped++
			continue
		}

		msgs = append(msgs, model.SMS{
			Sender:    raw.Address,
			Body:      raw.Body,
			Timestamp: ts,
		})
	}

	if dropped > 0 {
		common.LogWarn("Dropped messages with unreadable dates", common.Fields{"count": dropped})
	}
	return msgs, nil
}

// ReadJSONLines reads one {"sender","body","timestamp"} object per line.
// Blank lines are ignored.
func ReadJSONLines(r io.Reader) ([]model.SMS, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var msgs []model.SMS
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		var raw jsonSMS
		if err := json.Unmarshal(text, &raw); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse JSON: %w", line, err)
		}
		msgs = append(msgs, model.SMS(raw))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSON lines: %w", err)
	}
	return msgs, nil
}
