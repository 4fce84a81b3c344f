package patch

import (
	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
)

// Options selects the files of one patch run
type Options struct {
	Input  string
	Output string
	Verify bool
}

// Execute loads the input image, runs the plan, writes the output and
// optionally verifies it. The report is always returned; on a fatal error no
// output file is written.
func Execute(plan *Plan, opts Options) (*Report, error) {
	rep := NewReport(opts.Input)
	err := execute(plan, opts, rep)
	rep.Finish(err)
	return rep, err
}

func execute(plan *Plan, opts Options, rep *Report) error {
	if opts.Input == "" || opts.Output == "" {
		return common.ConfigError("both an input and an output image are required")
	}

	buf, err := psx.LoadBuffer(opts.Input)
	if err != nil {
		return err
	}
	common.LogInfo(common.InfoImageLoaded, opts.Input, buf.Len(), buf.SectorCount())
	if buf.Len()%psx.CD_SECTOR_SIZE != 0 {
		common.LogWarn("%s is not a whole number of %d-byte sectors", opts.Input, psx.CD_SECTOR_SIZE)
	}

	var original *psx.Buffer
	if opts.Verify {
		original = psx.NewBuffer(append([]byte(nil), buf.Bytes()...))
	}

	if err := NewDriver(plan).Run(buf, rep); err != nil {
		common.LogInfo(common.InfoNoOutputWritten)
		return err
	}

	if err := buf.Flush(opts.Output); err != nil {
		return common.NewError(common.KindIO, "%s", common.ErrFailedToWriteImage).Wrap(err)
	}
	rep.Output = opts.Output
	common.LogInfo(common.InfoImageWritten, opts.Output)

	if !opts.Verify {
		return nil
	}
	v := NewVerifier(plan)
	v.Reference = original
	results, err := v.VerifyFile(opts.Output)
	rep.Verification = results
	return err
}
