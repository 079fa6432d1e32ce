package logging

import "os"

var stdout = os.Stdout
