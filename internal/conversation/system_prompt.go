package conversation

import (
	"fmt"
	"strings"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/catalog"
)

// GreetingStrategy selects how the one-time welcome is enforced.
type GreetingStrategy string

const (
	// StrategyDeterministic emits the greeting from code as the first
	// assistant turn and tells the model it has already been delivered.
	StrategyDeterministic GreetingStrategy = "deterministic"
	// StrategyInstructionOnly leaves greeting to the model and only asks it
	// not to repeat itself. Kept for comparison; not enforceable.
	StrategyInstructionOnly GreetingStrategy = "instruction"
)

// ParseGreetingStrategy maps a config value to a strategy, defaulting to
// deterministic.
func ParseGreetingStrategy(raw string) GreetingStrategy {
	if GreetingStrategy(strings.ToLower(strings.TrimSpace(raw))) == StrategyInstructionOnly {
		return StrategyInstructionOnly
	}
	return StrategyDeterministic
}

const (
	defaultShopName = "Trendy Fashion"
	defaultBotName  = "ShopBot"

	refusalMessage = "We currently only support Korean and English. Please communicate in one of these languages.\n" +
		"현재 한국어와 영어만 지원합니다. 두 언어 중 하나로 말씀해 주세요."

	greetingTemplate = "안녕하세요. %s에 오신 것을 환영합니다! 무엇을 도와드릴까요?"
)

// ComposerConfig names the shop persona.
type ComposerConfig struct {
	ShopName string
	BotName  string
	Strategy GreetingStrategy
}

// Composer builds the fixed prefix sent on every completion request.
type Composer struct {
	shopName string
	botName  string
	strategy GreetingStrategy
	greeting string
}

// Prefix is the immutable per-session request prefix.
type Prefix struct {
	Instruction        string
	Greeting           string
	SeedGreeting       bool
	CatalogFingerprint string
}

func NewComposer(cfg ComposerConfig) *Composer {
	c := &Composer{
		shopName: strings.TrimSpace(cfg.ShopName),
		botName:  strings.TrimSpace(cfg.BotName),
		strategy: cfg.Strategy,
	}
	if c.shopName == "" {
		c.shopName = defaultShopName
	}
	if c.botName == "" {
		c.botName = defaultBotName
	}
	if c.strategy != StrategyInstructionOnly {
		c.strategy = StrategyDeterministic
	}
	c.greeting = fmt.Sprintf(greetingTemplate, c.shopName)
	return c
}

// Strategy returns the configured greeting strategy.
func (c *Composer) Strategy() GreetingStrategy { return c.strategy }

// BuildGreeting returns the fixed welcome message.
func (c *Composer) BuildGreeting() string { return c.greeting }

// RefusalMessage returns the fixed reply for unsupported languages.
func (c *Composer) RefusalMessage() string { return refusalMessage }

// Compose computes the prefix for a catalog once so sessions can reuse it.
func (c *Composer) Compose(cat catalog.Text) Prefix {
	return Prefix{
		Instruction:        c.BuildSystemInstruction(cat),
		Greeting:           c.greeting,
		SeedGreeting:       c.strategy == StrategyDeterministic,
		CatalogFingerprint: cat.Fingerprint(),
	}
}

// BuildSystemInstruction embeds the catalog verbatim in the instruction
// template. It is a pure function of the composer settings and cat.
func (c *Composer) BuildSystemInstruction(cat catalog.Text) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, an AI assistant for the online fashion shop %s.\n\n", c.botName, c.shopName)
	b.WriteString("Your role is to help customers browse products, answer questions about them, and guide them through the checkout process.\n\n")

	b.WriteString("LANGUAGE:\n")
	b.WriteString("- Reply in the same language the customer used in their latest message. If the message is in Korean, you must reply in Korean. If it is in English, you must reply in English.\n")
	b.WriteString("- Only Korean and English are supported. If the customer writes in any other language, do not translate and do not answer the question. Reply with exactly this message and nothing else:\n")
	b.WriteString(refusalMessage)
	b.WriteString("\n\n")

	b.WriteString("GREETING:\n")
	if c.strategy == StrategyDeterministic {
		fmt.Fprintf(&b, "- The customer has already received this welcome message: %q\n", c.greeting)
		b.WriteString("- Never greet or welcome the customer again in this session, even if their message is itself a greeting such as \"hello\" or \"안녕하세요\". Offer assistance or introduce products instead, for example: \"How can I assist you today?\"\n\n")
	} else {
		b.WriteString("- Greet the customer only once during their session. If the customer greets you (for example \"hello\" or \"안녕하세요\") after you have greeted them, do not greet them again. Offer assistance or introduce products instead.\n\n")
	}

	b.WriteString("PRODUCTS:\n")
	b.WriteString("- Only the products, prices, sizes and colors listed in the product list below exist. Never mention, invent or confirm any product, price, size or color that is not listed. If a customer asks for something not listed, say it is not currently available.\n")
	if cat.Empty() {
		b.WriteString("- No products are currently configured. Tell customers that no products are available right now and do not describe any.\n\n")
	} else {
		if cats := cat.Categories(); len(cats) > 0 {
			fmt.Fprintf(&b, "- Product categories: %s.\n", strings.Join(cats, ", "))
		}
		b.WriteString("The current product list is limited to:\n\n```\n")
		b.WriteString(cat.String())
		if !strings.HasSuffix(cat.String(), "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}

	b.WriteString("Make the shopping experience enjoyable and encourage customers to reach out if they have any questions or need assistance.")
	return b.String()
}
