package admission

import "testing"

func TestIsBotFlagsAutomationAgents(t *testing.T) {
	agents := []string{
		"curl/7.68.0",
		"Wget/1.21",
		"python-requests/2.31.0",
		"Go-http-client/2.0",
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/119.0.0.0",
		"Mozilla/5.0 Puppeteer",
		"Java/17.0.2",
	}
	for _, agent := range agents {
		if !IsBot(agent) {
			t.Errorf("expected %q to be classified as a bot", agent)
		}
	}
}

func TestIsBotMissingUserAgent(t *testing.T) {
	if !IsBot("") {
		t.Fatal("expected a missing user-agent to be classified as a bot")
	}
}

func TestIsBotPassesBrowsers(t *testing.T) {
	agents := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	}
	for _, agent := range agents {
		if IsBot(agent) {
			t.Errorf("expected %q to pass bot detection", agent)
		}
	}
}
