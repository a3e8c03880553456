package email

import (
	"fmt"
	"strings"
)

// OrderItem is one promoted song as rendered in the confirmation email.
type OrderItem struct {
	TrackName string
	Artist    string
	TierName  string
	Price     float64
}

// BuildOrderConfirmationBody builds the HTML body for the order confirmation.
func BuildOrderConfirmationBody(orderID string, total float64, items []OrderItem) string {
	var itemsHTML strings.Builder
	for _, item := range items {
		title := item.TrackName
		if item.Artist != "" {
			title = fmt.Sprintf("%s by %s", item.TrackName, item.Artist)
		}
		itemsHTML.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">$%.2f</td>
			</tr>`,
			title,
			item.TierName,
			item.Price,
		))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Your campaign is on its way</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Thank you for your order. Our team is lining up playlist pitches for your music now.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>

		<h2 style="font-size: 18px; border-bottom: 2px solid #667eea; padding-bottom: 10px;">Your campaigns</h2>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Track</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">Campaign</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Price</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
		</table>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Total</span>
			<span style="font-size: 24px; font-weight: bold; color: #667eea; margin-left: 10px;">$%.2f</span>
		</div>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This email was sent automatically. If you have any questions, just reply and our support team will help.
		</p>
	</div>
</body>
</html>`, orderID, itemsHTML.String(), total)
}
