package flags

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cli_utils "github.com/ssvlabs/eth-tss/cli/utils"
)

// Flag names.
const (
	logLevel       = "logLevel"
	logFormat      = "logFormat"
	logLevelFormat = "logLevelFormat"
	logFilePath    = "logFilePath"
	configPath     = "configPath"
	outputPath     = "outputPath"
	jsonOutput     = "json"
)

// global base flags
var (
	ConfigPath     string
	OutputPath     string
	LogLevel       string
	LogFormat      string
	LogLevelFormat string
	LogFilePath    string
	JSONOutput     bool
)

func SetBaseFlags(cmd *cobra.Command) {
	OutputPathFlag(cmd)
	ConfigPathFlag(cmd)
	LogLevelFlag(cmd)
	LogFormatFlag(cmd)
	LogLevelFormatFlag(cmd)
	LogFilePathFlag(cmd)
	JSONOutputFlag(cmd)
}

// SetViperConfig reads the yaml config file if configPath is provided
func SetViperConfig(cmd *cobra.Command) error {
	if err := viper.BindPFlag(configPath, cmd.PersistentFlags().Lookup(configPath)); err != nil {
		return err
	}
	ConfigPath = viper.GetString(configPath)
	if ConfigPath != "" && filepath.Clean(ConfigPath) != "" && !strings.Contains(ConfigPath, "..") {
		stat, err := os.Stat(ConfigPath)
		if err != nil {
			return err
		}
		if stat.IsDir() {
			return fmt.Errorf("configPath flag should be a path to a *.yaml file, but dir provided")
		}
		viper.SetConfigType("yaml")
		viper.SetConfigFile(ConfigPath)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}

// BindBaseFlags binds flags to yaml config parameters
func BindBaseFlags(cmd *cobra.Command) error {
	for _, name := range []string{outputPath, logLevel, logFormat, logLevelFormat, logFilePath, jsonOutput} {
		if err := viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	OutputPath = viper.GetString(outputPath)
	if OutputPath != "" {
		OutputPath = filepath.Clean(OutputPath)
	}
	if strings.Contains(OutputPath, "..") {
		return fmt.Errorf("😥 outputPath cant contain traversal")
	}
	LogLevel = viper.GetString(logLevel)
	LogFormat = viper.GetString(logFormat)
	LogLevelFormat = viper.GetString(logLevelFormat)
	LogFilePath = viper.GetString(logFilePath)
	if strings.Contains(LogFilePath, "..") {
		return fmt.Errorf("😥 logFilePath cant contain traversal")
	}
	JSONOutput = viper.GetBool(jsonOutput)
	return nil
}

// CreateOutputDir makes sure results can be stored at outputPath
func CreateOutputDir() error {
	return cli_utils.CreateDirIfNotExist(OutputPath)
}

// LogLevelFlag logger's log level flag to the command
func LogLevelFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, logLevel, "info", "Defines logger's log level", false)
}

// LogFormatFlag logger's  logger's encoding flag to the command
func LogFormatFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, logFormat, "console", "Defines logger's encoding, valid values are 'json' and 'console' (default)", false)
}

// LogLevelFormatFlag logger's level format flag to the command
func LogLevelFormatFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, logLevelFormat, "capitalColor", "Defines logger's level format, valid values are 'capitalColor' (default), 'capital' or 'lowercase'", false)
}

// LogFilePathFlag file path to write logs into
func LogFilePathFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, logFilePath, "debug.log", "Defines a file path to write logs into", false)
}

// ConfigPathFlag config path flag to the command
func ConfigPathFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, configPath, "", "Path to config file", false)
}

// OutputPathFlag sets the path to store resulting files
func OutputPathFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, outputPath, "./output", "Path to store results", false)
}

// JSONOutputFlag prints the outcome as JSON instead of a table
func JSONOutputFlag(c *cobra.Command) {
	AddPersistentBoolFlag(c, jsonOutput, false, "Print the outcome as JSON", false)
}
