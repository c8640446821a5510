package notify

import (
	"fmt"
	"html"

	"libraryrental/internal/dates"
)

// NoOverdueMessage is posted to the shared channel when a sweep finds nothing.
const NoOverdueMessage = "No borrowings overdue today!"

// lowStockThreshold is the largest remaining count that still gets a
// "copies left" notice.
const lowStockThreshold = 3

// StockMessage announces the remaining stock of a book after a borrowing.
// Shared-channel messages are sent as HTML, so user data is escaped.
func StockMessage(title string, inventory int) string {
	t := html.EscapeString(title)
	switch {
	case inventory <= 0:
		return fmt.Sprintf("Book <b>%s</b> is now out of stock.", t)
	case inventory == 1:
		return fmt.Sprintf("Hurry up! Only 1 copy left of <b>%s</b>.", t)
	case inventory <= lowStockThreshold:
		return fmt.Sprintf("Hurry up! Only %d copies left of <b>%s</b>.", inventory, t)
	default:
		return fmt.Sprintf("Someone just borrowed <b>%s</b>. Looking for your next read? There are %d copies on the shelf.", t, inventory)
	}
}

// DueDateReminder is sent privately to a borrower right after borrowing.
func DueDateReminder(title string, expected dates.Date) string {
	return fmt.Sprintf("You borrowed %s. Please return it by %s.", html.EscapeString(title), expected)
}

// OverdueNotice is posted to the shared channel for each overdue borrowing.
func OverdueNotice(user, title, author string) string {
	return fmt.Sprintf("User %s overdue borrowing of <b>%s</b> by %s",
		html.EscapeString(user), html.EscapeString(title), html.EscapeString(author))
}

// OverdueReminder is sent privately to the borrower of an overdue book.
func OverdueReminder(title string, borrowed, expected dates.Date) string {
	return fmt.Sprintf(
		"Hey, you borrowed %s at %s. Expected return date: %s has already passed. Please return book as soon as possible",
		html.EscapeString(title), borrowed, expected,
	)
}
