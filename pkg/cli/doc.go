// Package cli provides shared terminal helpers for datapipe commands:
// styled headers, structured result rendering and small formatting
// utilities.
//
// Example usage:
//
//	// Render a result for piping
//	cli.Output(result, cli.OutputOptions{Format: cli.FormatJSON})
//
//	// Styled headers
//	styles := cli.NewStyles(cli.DefaultTheme)
//	fmt.Println(styles.Title.Render("Job 1"))
package cli
