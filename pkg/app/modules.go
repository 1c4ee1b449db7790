package app

// Compiled-in modules. Each registers itself with core in init.
import (
	_ "github.com/flemzord/confidant/internal/gateway"
	_ "github.com/flemzord/confidant/modules/history/file"
	_ "github.com/flemzord/confidant/modules/history/sqlite"
	_ "github.com/flemzord/confidant/modules/provider/openai_compatible"
)
