package cli

import (
	"os"

	"github.com/alexflint/go-arg"
	"github.com/ringo-is-a-color/lastcall/util/osutil"
)

func Parse() Args {
	args := Args{}
	parser := arg.MustParse(&args)
	if len(os.Args) == 1 {
		parser.WriteHelp(os.Stdout)
		osutil.Exit(0)
	}
	return args
}

type Args struct {
	ConfigFile string `arg:"positional" help:"config file to use"`
	Verbose    bool   `arg:"-v,--verbose" help:"log at debug level, overriding the config file"`
}

const AppName = "lastcall"

// without v prefix

var version = "(unknown version)"

func (Args) Version() string {
	return AppName + " " + version
}

func (Args) Description() string {
	return "a daemon which releases its resources in reverse acquisition order on termination"
}
