package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mpetrenko/concert-notifier/internal/dal"
)

const reportTitle = "Список подписчиков на рассылку:"

// renderReport builds the admin-facing listing: active subscribers first,
// then by chat id, matching the persisted order.
func renderReport(subs map[int64]dal.Subscriber) string {
	if len(subs) == 0 {
		return reportTitle + "\n\nПока никто не подписан."
	}

	ordered := make([]dal.Subscriber, 0, len(subs))
	for _, sub := range subs {
		ordered = append(ordered, sub)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].MailingEnabled != ordered[j].MailingEnabled {
			return ordered[i].MailingEnabled
		}
		return ordered[i].ChatID < ordered[j].ChatID
	})

	var b strings.Builder
	b.WriteString(reportTitle)
	b.WriteString("\n")
	for i, sub := range ordered {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%d) %s", i+1, renderSubscriber(sub)))
	}
	return b.String()
}

func renderSubscriber(sub dal.Subscriber) string {
	status := "остановлена"
	if sub.MailingEnabled {
		status = "активна"
	}

	line := sub.DisplayName()
	if sub.Username != "" {
		line += " (@" + sub.Username + ")"
	}
	return fmt.Sprintf("%s [%d] — рассылка %s", line, sub.ChatID, status)
}
