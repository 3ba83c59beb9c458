package util

import (
	"flag"
)

type Params struct {
	rootPath    string
	logLevel    string
	configFile  string
	recursive   bool
	sortBy      string
	sortReverse bool
}

func ParseParams() *Params {
	logLevel := flag.String("logLevel", "INFO", "Log level: ERROR, WARN, INFO, DEBUG, TRACE")
	configFile := flag.String("config", "", "Path to YAML configuration file")
	recursive := flag.Bool("recursive", false, "Scan the directory tree recursively")
	sortBy := flag.String("sortBy", "", "Sort key: name, type, last-modified")
	sortReverse := flag.Bool("sortReverse", false, "Invert sort order")

	flag.Parse()
	rootPath := flag.Arg(0)

	return &Params{
		rootPath:    rootPath,
		logLevel:    *logLevel,
		configFile:  *configFile,
		recursive:   *recursive,
		sortBy:      *sortBy,
		sortReverse: *sortReverse,
	}
}

func (s *Params) RootPath() string {
	return s.rootPath
}

func (s *Params) LogLevel() string {
	return s.logLevel
}

func (s *Params) ConfigFile() string {
	return s.configFile
}

func (s *Params) Recursive() bool {
	return s.recursive
}

func (s *Params) SortBy() string {
	return s.sortBy
}

func (s *Params) SortReverse() bool {
	return s.sortReverse
}
