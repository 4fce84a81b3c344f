package cmd

import (
	"fmt"
	"strings"

	"github.com/hansbonini/blazetools/pkg/patch"
	"github.com/spf13/pflag"
)

// reportFormat is the --report flag: json or yaml
type reportFormat string

var _ pflag.Value = (*reportFormat)(nil)

func (f *reportFormat) String() string {
	return string(*f)
}

func (f *reportFormat) Set(s string) error {
	switch v := strings.ToLower(s); v {
	case patch.FormatJSON, patch.FormatYAML:
		*f = reportFormat(v)
		return nil
	default:
		return fmt.Errorf("must be %s or %s", patch.FormatJSON, patch.FormatYAML)
	}
}

func (f *reportFormat) Type() string {
	return "format"
}
