// Package harvest defines the core types shared by the review harvesting
// engine: targets read from the input list, the records extracted from each
// page, the walk and run outcomes, and the typed errors that classify a
// target's failure.
package harvest
