package rules

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/Veraticus/spice-sms/internal/config"
)

var (
	//go:embed assets/bank_rules.json
	bankRulesJSON []byte

	//go:embed assets/merchant_rules.json
	merchantRulesJSON []byte
)

// Source delivers the raw bytes of a rule document.
type Source interface {
	// Name identifies the source in logs and errors. Its extension selects the decoder.
	Name() string
	// Read returns the document bytes.
	Read(ctx context.Context) ([]byte, error)
}

// FileSource reads a rule document from disk on every Read.
type FileSource struct {
	Path string
}

// Name returns the file path.
func (f FileSource) Name() string {
	return f.Path
}

// Read reads the file after expanding ~ and environment variables.
func (f FileSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(config.ExpandPath(f.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return data, nil
}

// BytesSource serves an in-memory document.
type BytesSource struct {
	Label string
	Data  []byte
}

// Name returns the label.
func (b BytesSource) Name() string {
	return b.Label
}

// Read returns a copy of the data.
func (b BytesSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.Data == nil {
		return nil, fmt.Errorf("rule source %q is empty", b.Label)
	}
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out, nil
}

// EmbeddedBankRules returns the bank rule document bundled with the binary.
func EmbeddedBankRules() Source {
	return BytesSource{Label: "embedded:bank_rules.json", Data: bankRulesJSON}
}

// EmbeddedMerchantRules returns the merchant rule document bundled with the binary.
func EmbeddedMerchantRules() Source {
	return BytesSource{Label: "embedded:merchant_rules.json", Data: merchantRulesJSON}
}

// SourceFor returns a FileSource for path, or fallback when path is empty.
func SourceFor(path string, fallback Source) Source {
	if path == "" {
		return fallback
	}
	return FileSource{Path: path}
}
