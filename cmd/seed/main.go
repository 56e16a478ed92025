// Command seed loads a starter catalog into the database so a fresh
// deployment has something to browse.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"library-server/library"
)

func main() {
	dbPath := flag.String("db", "library.db", "path to the SQLite database")
	flag.Parse()

	db, err := library.NewDatabase(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()

	existing, err := db.ListBooks(ctx, library.BookFilter{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing books: %v\n", err)
		os.Exit(1)
	}
	if len(existing) > 0 {
		fmt.Printf("Catalog already has %d books, nothing to do.\n", len(existing))
		return
	}

	samples := []library.BookSpec{
		{ISBN: "978-0-13-468599-1", Title: "Clean Code", Author: "Robert C. Martin",
			Category: "Programming", TotalCopies: 3, Description: "A handbook of agile software craftsmanship"},
		{ISBN: "978-0-201-63361-0", Title: "Design Patterns", Author: "Gang of Four",
			Category: "Programming", TotalCopies: 2, Description: "Elements of reusable object-oriented software"},
		{ISBN: "978-0-13-235088-4", Title: "Clean Architecture", Author: "Robert C. Martin",
			Category: "Programming", TotalCopies: 2, Description: "A craftsman's guide to software structure"},
		{ISBN: "978-0-7356-6745-7", Title: "The Pragmatic Programmer", Author: "David Thomas",
			Category: "Programming", TotalCopies: 3, Description: "Your journey to mastery"},
		{ISBN: "978-1-59327-928-8", Title: "Python Crash Course", Author: "Eric Matthes",
			Category: "Programming", TotalCopies: 4, Description: "A hands-on introduction to programming"},
	}

	for _, spec := range samples {
		book, err := db.CreateBook(ctx, spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error adding %q: %v\n", spec.Title, err)
			os.Exit(1)
		}
		fmt.Printf("Added %q by %s (ID %d, %d copies)\n",
			book.Title, book.Author, book.ID, book.TotalCopies)
	}
	fmt.Printf("Seeded %d books.\n", len(samples))
}
