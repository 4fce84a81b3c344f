package patch

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
)

// ModuleArchiveImport replaces the archive with an externally edited copy
const ModuleArchiveImport = "archive_import"

func init() {
	Register(ModuleArchiveImport, newArchiveImport)
}

// ArchiveImport is the descriptor of the archive import module.
// Path is resolved against the descriptor's directory.
type ArchiveImport struct {
	Toggle `yaml:",inline"`
	Path   string `yaml:"path"`

	baseDir string
}

func newArchiveImport(doc *Document) (Module, error) {
	m := &ArchiveImport{baseDir: doc.BaseDir}
	if err := decodeDescriptor(doc, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the module id
func (m *ArchiveImport) Name() string {
	return ModuleArchiveImport
}

func (m *ArchiveImport) file() string {
	if filepath.IsAbs(m.Path) || m.baseDir == "" {
		return m.Path
	}
	return filepath.Join(m.baseDir, m.Path)
}

func (m *ArchiveImport) validate() error {
	if err := m.Toggle.validate(); err != nil {
		return err
	}
	if m.Path == "" {
		return common.ConfigError("path is required")
	}
	if !m.Enabled() {
		return nil
	}
	info, err := os.Stat(m.file())
	if err != nil {
		return common.ConfigError("%v", err)
	}
	size, err := common.SafeInt64ToUint32(info.Size())
	if err != nil {
		return common.ConfigError("%s: %v", m.Path, err)
	}
	if size%psx.CD_DATA_SIZE != 0 {
		return common.ConfigError("%s is %d bytes, not a multiple of %d", m.Path, size, psx.CD_DATA_SIZE)
	}
	return nil
}

// load reads the imported file and pads it with zeros to the archive length
func (m *ArchiveImport) load(arc *psx.ArchiveView) ([]byte, error) {
	data, err := os.ReadFile(m.file())
	if err != nil {
		return nil, common.NewError(common.KindIO, "reading %s", m.Path).Wrap(err)
	}
	if len(data)%psx.CD_DATA_SIZE != 0 {
		return nil, common.ConfigError("%s is %d bytes, not a multiple of %d", m.Path, len(data), psx.CD_DATA_SIZE)
	}
	if uint64(len(data)) > uint64(arc.Len()) {
		return nil, common.NewError(common.KindBoundsViolation,
			"%s is %d bytes, larger than the %d byte archive", m.Path, len(data), arc.Len())
	}
	full := make([]byte, arc.Len())
	copy(full, data)
	return full, nil
}

// Apply writes every archive sector whose user data differs from the import
func (m *ArchiveImport) Apply(ctx *Context, rep *ModuleReport) error {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return err
	}
	want, err := m.load(arc)
	if err != nil {
		return err
	}

	sectors := 0
	for off := 0; off < len(want); off += psx.CD_DATA_SIZE {
		end := off + psx.CD_DATA_SIZE
		if end > len(want) {
			end = len(want)
		}
		sectors++
		have, err := arc.ReadBytes(uint32(off), end-off)
		if err != nil {
			return err
		}
		if bytes.Equal(have, want[off:end]) {
			rep.skipped()
			continue
		}
		if err := arc.WriteBytes(uint32(off), want[off:end]); err != nil {
			return err
		}
		rep.patched()
	}
	rep.found(sectors)
	common.LogInfo(common.InfoArchiveImported, m.Path, rep.SitesPatched, sectors)
	return nil
}

// Verify compares the archive with the imported file
func (m *ArchiveImport) Verify(ctx *Context) ([]VerifyResult, error) {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return nil, err
	}
	want, err := m.load(arc)
	if err != nil {
		return nil, err
	}
	have, err := arc.Snapshot(0, arc.Len())
	if err != nil {
		return nil, err
	}
	check := "archive matches " + filepath.Base(m.Path)
	if i := firstDifference(have, want); i >= 0 {
		return []VerifyResult{fail(m.Name(), check, "byte 0x%08X differs", i)}, nil
	}
	return []VerifyResult{pass(m.Name(), check)}, nil
}
