package mail

import (
	"fmt"
	"time"

	"subtracker/internal/reminder"
)

const renewalDateLayout = "Jan 2, 2006"

// Links are the URLs every reminder points to.
type Links struct {
	AccountSettings string
	Support         string
}

// MailInfo is the data a reminder template is rendered with.
type MailInfo struct {
	UserName            string
	SubscriptionName    string
	RenewalDate         string
	PlanName            string
	Price               string
	PaymentMethod       string
	AccountSettingsLink string
	SupportLink         string
	DaysLeft            int
}

func newMailInfo(snapshot reminder.Snapshot, now time.Time, loc *time.Location, links Links) MailInfo {
	userName := snapshot.UserName
	if userName == "" {
		userName = "User"
	}

	daysLeft := int(snapshot.RenewalDate.Sub(now).Hours() / 24)
	if daysLeft < 0 {
		daysLeft = 0
	}

	return MailInfo{
		UserName:            userName,
		SubscriptionName:    snapshot.Name,
		RenewalDate:         snapshot.RenewalDate.In(loc).Format(renewalDateLayout),
		PlanName:            snapshot.Name,
		Price:               fmt.Sprintf("%s%.2f (%s)", snapshot.Currency.Symbol(), snapshot.Price, snapshot.Frequency),
		PaymentMethod:       snapshot.PaymentMethod,
		AccountSettingsLink: links.AccountSettings,
		SupportLink:         links.Support,
		DaysLeft:            daysLeft,
	}
}
