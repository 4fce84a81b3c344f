package patch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
	"gopkg.in/yaml.v3"
)

// FileLayout declares where a contained file lives in the image.
// Either LBA (with Length) or Name must be given; a Name is resolved through
// the ISO9660 directory and any declared field overrides what was found.
type FileLayout struct {
	Name       string      `yaml:"name"`
	LBA        *common.Hex `yaml:"lba"`
	Length     *common.Hex `yaml:"length"`
	LoadBase   common.Hex  `yaml:"load_base"`
	HeaderSize common.Hex  `yaml:"header_size"`
}

// ImageLayout names the two contained files modules work on
type ImageLayout struct {
	Executable *FileLayout `yaml:"executable"`
	Archive    *FileLayout `yaml:"archive"`
}

// Step is one entry of the plan's module list
type Step struct {
	Module         string    `yaml:"module"`
	Descriptor     yaml.Node `yaml:"descriptor"`
	DescriptorFile string    `yaml:"descriptor_file"`
}

// Plan is the ordered list of modules to run on one image
type Plan struct {
	Image   ImageLayout `yaml:"image"`
	Steps   []Step      `yaml:"modules"`
	Dir     string      `yaml:"-"`
	Modules []Module    `yaml:"-"`
}

// LoadPlan reads a plan and every descriptor it references
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.ConfigError("%s: %v", common.ErrFailedToReadPlan, err).Wrap(err)
	}
	return ParsePlan(data, filepath.Dir(path))
}

// ParsePlan decodes a plan; descriptor files are resolved against dir.
// Every descriptor is decoded and validated here, before any image is touched.
func ParsePlan(data []byte, dir string) (*Plan, error) {
	plan := &Plan{Dir: dir}
	if err := decodeStrict(data, plan); err != nil {
		return nil, common.ConfigError("%s: %v", common.ErrFailedToParsePlan, err)
	}
	if len(plan.Steps) == 0 {
		return nil, common.ConfigError("%s: no modules declared", common.ErrFailedToParsePlan)
	}
	if plan.Image.Executable == nil && plan.Image.Archive == nil {
		return nil, common.ConfigError("%s: image declares neither an executable nor an archive", common.ErrFailedToParsePlan)
	}
	if l := plan.Image.Executable; l != nil {
		if err := l.validate("executable"); err != nil {
			return nil, err
		}
	}
	if l := plan.Image.Archive; l != nil {
		if err := l.validate("archive"); err != nil {
			return nil, err
		}
	}

	for i, step := range plan.Steps {
		doc, err := plan.document(i, step)
		if err != nil {
			return nil, err
		}
		m, err := NewModule(doc)
		if err != nil {
			return nil, err
		}
		plan.Modules = append(plan.Modules, m)
	}
	return plan, nil
}

func (p *Plan) document(i int, step Step) (*Document, error) {
	if step.Module == "" {
		return nil, common.ConfigError("%s: modules[%d] has no \"module\" name", common.ErrFailedToParsePlan, i)
	}
	inline := step.Descriptor.Kind != 0
	switch {
	case inline && step.DescriptorFile != "":
		return nil, common.ConfigError("modules[%d]: give either descriptor or descriptor_file, not both", i).In(step.Module)
	case inline:
		raw, err := yaml.Marshal(&step.Descriptor)
		if err != nil {
			return nil, common.ConfigError("%s: %v", common.ErrFailedToParseDescriptor, err).In(step.Module)
		}
		return NewDocument(step.Module, fmt.Sprintf("modules[%d] inline", i), p.Dir, raw), nil
	case step.DescriptorFile != "":
		path := step.DescriptorFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.Dir, path)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, common.ConfigError("%s: %v", common.ErrFailedToReadDescriptor, err).In(step.Module)
		}
		return NewDocument(step.Module, path, filepath.Dir(path), raw), nil
	default:
		return nil, common.ConfigError("modules[%d] has no descriptor", i).In(step.Module)
	}
}

func (l *FileLayout) validate(role string) error {
	if l.Name == "" && l.LBA == nil {
		return common.ConfigError("%s: %s needs a name or an lba", common.ErrFailedToParsePlan, role)
	}
	if l.Name == "" && l.Length == nil {
		return common.ConfigError("%s: %s at lba %v needs a length", common.ErrFailedToParsePlan, role, *l.LBA)
	}
	if role == "archive" && (l.LoadBase != 0 || l.HeaderSize != 0) {
		return common.ConfigError("%s: the archive has no load address", common.ErrFailedToParsePlan)
	}
	return nil
}

// resolve turns the declaration into a contained file, reading the directory if needed
func (l *FileLayout) resolve(reader *psx.CDReader, role string) (psx.ContainedFile, error) {
	f := psx.ContainedFile{Name: l.Name}
	if l.Name != "" && (l.LBA == nil || l.Length == nil) {
		found, err := reader.Locate(l.Name)
		if err != nil {
			return f, err
		}
		f = found
	}
	if f.Name == "" {
		f.Name = role
	}
	if l.LBA != nil {
		f.LBA = uint32(*l.LBA)
	}
	if l.Length != nil {
		f.Length = uint32(*l.Length)
	}
	return f, nil
}

// OpenViews builds the archive and executable views the plan declares
func OpenViews(buf *psx.Buffer, layout ImageLayout) (*Context, error) {
	reader := psx.NewCDReader(buf)
	ctx := &Context{}

	if layout.Executable != nil {
		f, err := layout.Executable.resolve(reader, "executable")
		if err != nil {
			return nil, err
		}
		v, err := psx.NewExecutableView(buf, f, uint32(layout.Executable.LoadBase), uint32(layout.Executable.HeaderSize))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", common.ErrFailedToOpenExecutable, err)
		}
		common.LogInfo(common.InfoExecutableFound, f.LBA, f.Name, f.Length, v.LoadBase())
		ctx.Executable = v
	}

	if layout.Archive != nil {
		f, err := layout.Archive.resolve(reader, "archive")
		if err != nil {
			return nil, err
		}
		a, err := psx.NewArchiveView(buf, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", common.ErrFailedToOpenArchive, err)
		}
		common.LogInfo(common.InfoArchiveFound, f.LBA, f.Name, f.Length)
		ctx.Archive = a
	}
	return ctx, nil
}
