// Command review-harvester harvests paginated guest reviews into workbooks.
package main

import "github.com/JakeFAU/review-harvester/cmd"

func main() {
	cmd.Execute()
}
