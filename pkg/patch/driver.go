package patch

import (
	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
)

// Driver runs the modules of a plan, in order, against one image buffer
type Driver struct {
	plan *Plan
}

// NewDriver creates a driver for plan
func NewDriver(plan *Plan) *Driver {
	return &Driver{plan: plan}
}

// Run applies every enabled module. Each module runs inside a buffer journal:
// a module that fails leaves no writes behind. The first fatal error stops
// the run and is returned; warnings are only recorded.
func (d *Driver) Run(buf *psx.Buffer, rep *Report) error {
	ctx, err := OpenViews(buf, d.plan.Image)
	if err != nil {
		return err
	}

	for _, m := range d.plan.Modules {
		mr := rep.add(m.Name(), m.Enabled())
		if !m.Enabled() {
			common.LogInfo(common.InfoModuleDisabled, m.Name())
			continue
		}

		common.LogInfo(common.InfoModuleStarted, m.Name())
		buf.Begin()
		if err := m.Apply(ctx, mr); err != nil {
			buf.Rollback()
			pe := asFatal(err).In(m.Name())
			if pe.Severity == common.SeverityWarning {
				mr.Warn(pe)
				continue
			}
			mr.Fail(pe)
			common.LogError("%s: %v", common.ErrModuleFailed, pe)
			return pe
		}
		buf.Commit()
		common.LogInfo(common.InfoModuleResult, m.Name(), mr.SitesFound, mr.SitesPatched, mr.SitesSkipped)
	}
	return nil
}

func asFatal(err error) *common.PatchError {
	if pe, ok := common.AsPatchError(err); ok {
		return pe
	}
	return common.NewError(common.KindIO, common.ErrModuleFailed).Wrap(err)
}
