package theme

import "fmt"

// Banner returns the CLI banner.
func Banner() string {
	const cyan = "\033[36m"
	const yellow = "\033[33m"
	const reset = "\033[0m"

	return "" +
		cyan + "  ████████╗██╗    ██╗ ██████╗  ██████╗ ████████╗███████╗██████╗\n" + reset +
		cyan + "     ██║   ██║ █╗ ██║██║   ██║██║   ██║   ██║   █████╗  ██████╔╝\n" + reset +
		cyan + "     ██║   ╚███╔███╔╝╚██████╔╝╚██████╔╝   ██║   ███████╗██║  ██║\n" + reset +
		yellow + "  ────────────────────────────────────────────────\n" + reset +
		"   team bot for the twooter platform\n"
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
