// Package extract turns one review listing page into normalized records and
// the address of the following page, using a fixed CSS selector contract
// evaluated with goquery.
package extract
