// Package cmd defines the corpus command tree.
//
// The root command resolves configuration and builds the shared App before
// any subcommand runs. scrape acquires works from the catalog, align
// re-splits one stored chapter into sentence pairs, and audit reports (and
// optionally removes) chapters whose translations look like boilerplate.
package cmd
