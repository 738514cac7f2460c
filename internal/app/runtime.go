package app

import (
	"os"
	"strconv"
)

const testModeEnv = "PLANNER_TEST_MODE"

// InTestMode reports whether PLANNER_TEST_MODE asks the binaries to return
// before connecting to Postgres or Redis.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && on
}
