package prog

import "flag"

// FlagSet wraps a [flag.FlagSet] with flags shared by more than one
// subprogram. Each shared flag is registered the first time it is asked
// for.
type FlagSet struct {
	*flag.FlagSet
	json *bool
	log  *LogFlags
}

// LogFlags keeps the flags for logging.
type LogFlags struct {
	File, Level string
}

// Log returns the flags for logging, registering them if needed.
func (fs *FlagSet) Log() *LogFlags {
	if fs.log == nil {
		var lf LogFlags
		fs.StringVar(&lf.File, "log", "",
			"A file to write the debug log to")
		fs.StringVar(&lf.Level, "log-level", "",
			"Minimum level of the log: debug, info, warn or error")
		fs.log = &lf
	}
	return fs.log
}

// JSON returns the -json flag, registering it if needed.
func (fs *FlagSet) JSON() *bool {
	if fs.json == nil {
		var json bool
		fs.BoolVar(&json, "json", false,
			"Show the output from -buildinfo or -version in JSON")
		fs.json = &json
	}
	return fs.json
}
