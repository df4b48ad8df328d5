package notify

import (
	"fmt"
	"strings"
	"time"

	"stockmatrix/internal/domain"
	"stockmatrix/internal/gather"
	"stockmatrix/internal/render"
)

// chartPlatform names the market's chart site linked from the email hint.
func chartPlatform(market domain.Market) (name, url string) {
	switch market {
	case domain.MarketUS:
		return "StockCharts", "https://stockcharts.com/"
	case domain.MarketHK:
		return "AASTOCKS", "http://www.aastocks.com/"
	case domain.MarketCN:
		return "Eastmoney", "https://www.eastmoney.com/"
	case domain.MarketJP:
		return "Rakuten Securities", "https://www.rakuten-sec.co.jp/"
	case domain.MarketKR:
		return "Naver Finance", "https://finance.naver.com/"
	default:
		return "WantGoo", "https://www.wantgoo.com/"
	}
}

// BuildReportEmail assembles the per-market report: run statistics,
// the nine matrix charts embedded inline, and the per-horizon bucket
// listings. Horizons in reports iterate week, month, year.
func BuildReportEmail(market domain.Market, referenceDate time.Time, result *gather.RunResult, artifacts []render.Artifact, reports map[string]string) Email {
	label := strings.ToUpper(string(market))
	dateStr := referenceDate.Format("2006-01-02")

	coverage := "N/A"
	if result != nil && result.Universe > 0 {
		coverage = fmt.Sprintf("%.1f%%", float64(result.Completed)/float64(result.Universe)*100)
	}
	platformName, platformURL := chartPlatform(market)

	var b strings.Builder
	b.WriteString(`<html><body style="font-family: sans-serif; color: #333; line-height: 1.6;">`)
	b.WriteString(`<div style="max-width: 800px; margin: auto; border: 1px solid #ddd; border-top: 10px solid #28a745; border-radius: 10px; padding: 25px;">`)
	fmt.Fprintf(&b, `<h2 style="color: #1a73e8; border-bottom: 2px solid #eee; padding-bottom: 10px;">%s market monitor report</h2>`, label)
	fmt.Fprintf(&b, `<p style="color: #666;">reference date: <b>%s</b></p>`, dateStr)

	if result != nil {
		b.WriteString(`<div style="background-color: #f8f9fa; padding: 15px; border-radius: 8px; margin: 20px 0; display: flex; justify-content: space-around; text-align: center;">`)
		fmt.Fprintf(&b, `<div><div style="font-size: 12px; color: #888;">universe</div><div style="font-size: 18px; font-weight: bold;">%d</div></div>`, result.Universe)
		fmt.Fprintf(&b, `<div><div style="font-size: 12px; color: #888;">completed</div><div style="font-size: 18px; font-weight: bold; color: #28a745;">%d</div></div>`, result.Completed)
		fmt.Fprintf(&b, `<div><div style="font-size: 12px; color: #888;">coverage</div><div style="font-size: 18px; font-weight: bold; color: #1a73e8;">%s</div></div>`, coverage)
		b.WriteString(`</div>`)
	}

	fmt.Fprintf(&b, `<p style="background-color: #fff9db; padding: 12px; border-left: 4px solid #fcc419; font-size: 14px; color: #666;">Symbols in the listings below link to <a href="%s" style="color: #e67e22; font-weight: bold;">%s</a> charts.</p>`,
		platformURL, platformName)

	b.WriteString(`<div style="margin-top: 30px;">`)
	for _, a := range artifacts {
		fmt.Fprintf(&b, `<div style="margin-bottom: 40px; text-align: center; border-bottom: 1px dashed #eee; padding-bottom: 25px;">`)
		fmt.Fprintf(&b, `<h3 style="color: #2c3e50; text-align: left; font-size: 16px;">%s</h3>`, a.Label)
		fmt.Fprintf(&b, `<img src="cid:%s" style="width: 100%%; max-width: 750px;">`, a.ID)
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)

	b.WriteString(`<div style="margin-top: 20px;">`)
	for _, horizon := range []string{"week", "month", "year"} {
		report, ok := reports[horizon]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, `<div style="margin-bottom: 20px;"><h4 style="color: #16a085;">%s return distribution</h4>`, horizon)
		fmt.Fprintf(&b, `<pre style="background-color: #2d3436; color: #dfe6e9; padding: 15px; border-radius: 5px; font-size: 12px; white-space: pre-wrap;">%s</pre></div>`, report)
	}
	b.WriteString(`</div>`)

	b.WriteString(`<p style="margin-top: 40px; font-size: 11px; color: #999; text-align: center;">Automated report. Data for reference only, not investment advice.</p>`)
	b.WriteString(`</div></body></html>`)

	email := Email{
		Subject: fmt.Sprintf("%s market monitor report - %s", label, dateStr),
		HTML:    b.String(),
	}
	for _, a := range artifacts {
		email.Attachments = append(email.Attachments, Attachment{
			Filename:  a.ID + ".png",
			ContentID: a.ID,
			Content:   a.PNG,
		})
	}
	return email
}

// BuildTelegramSummary renders the short completion ping sent alongside
// the email.
func BuildTelegramSummary(market domain.Market, result *gather.RunResult) string {
	label := strings.ToUpper(string(market))
	if result == nil || result.Universe == 0 {
		return fmt.Sprintf("<b>%s monitor report delivered</b>", label)
	}
	coverage := float64(result.Completed) / float64(result.Universe) * 100
	return fmt.Sprintf("<b>%s monitor report delivered</b>\ncoverage: %.1f%%\nsample: %d symbols",
		label, coverage, result.Completed)
}
