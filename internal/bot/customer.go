package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/money"
	"github.com/platanos-shop/storefront/internal/notify"
	"github.com/platanos-shop/storefront/internal/service"
)

// Catalog is the catalog lookup the customer bot browses.
// Satisfied by *service.CatalogService.
type Catalog interface {
	TopFacets(ctx context.Context, facet service.Facet) ([]database.FacetCount, error)
	Page(ctx context.Context, facet service.Facet, value string, page int) (service.ProductPage, error)
	Search(ctx context.Context, ownerID int64, handle, query string) ([]database.Product, error)
	Product(ctx context.Context, id int64) (database.Product, error)
	Variant(ctx context.Context, id int64) (database.Variant, error)
	Variants(ctx context.Context, productID int64) ([]database.Variant, error)
}

// Cart is satisfied by *service.CartService.
type Cart interface {
	Items(ctx context.Context, ownerID int64) ([]database.LineItem, error)
	Add(ctx context.Context, ownerID int64, item database.LineItem) ([]database.LineItem, error)
	SetQuantity(ctx context.Context, ownerID int64, index int, qty int) ([]database.LineItem, error)
	Clear(ctx context.Context, ownerID int64) error
}

// Profiles is satisfied by *service.ProfileService.
type Profiles interface {
	Get(ctx context.Context, ownerID int64) (database.CustomerProfile, error)
	Update(ctx context.Context, u service.ProfileUpdate) (database.CustomerProfile, error)
}

// Checkout is satisfied by *service.OrderService.
type Checkout interface {
	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
	ResumePayment(ctx context.Context, orderID uuid.UUID, ownerID int64) (*service.CheckoutResult, error)
}

// RequestCreator is satisfied by *service.RequestService.
type RequestCreator interface {
	Create(ctx context.Context, req service.NewRequest) (database.ProductRequest, error)
}

// Customer callback data.
const (
	cbCheckout   = "CHECKOUT"
	cbClearCart  = "CLEAR_CART"
	cbNoop       = "NOOP"
	cbRequestNew = "REQ_NEW"
	cbProduct    = "P_"
	cbVariant    = "V_"
	cbPay        = "PAY|"
	cbCartDelete = "CART_DEL|"
)

const maxCallbackData = 64

// Menu labels. Typed text matches with or without the emoji.
const (
	labelCategories = "📂 Categories"
	labelBrands     = "🏷️ Marques"
	labelCart       = "🧺 Veure cistella"
)

var (
	menuCategories = regexp.MustCompile(`(?i)categories`)
	menuBrands     = regexp.MustCompile(`(?i)marques`)
	menuCart       = regexp.MustCompile(`(?i)veure\s*cistella`)
	facetCallback  = regexp.MustCompile(`^(CAT|BRAND)\|(.+)\|(\d+)$`)
	nonDigits      = regexp.MustCompile(`[^0-9]`)
)

// CustomerBot is the storefront conversation: browse, cart, checkout.
type CustomerBot struct {
	chat
	catalog  Catalog
	carts    Cart
	profiles Profiles
	orders   Checkout
	requests RequestCreator
	sessions *Sessions
}

func NewCustomerBot(api Messenger, catalog Catalog, carts Cart, profiles Profiles, orders Checkout, requests RequestCreator) *CustomerBot {
	return &CustomerBot{
		chat:     chat{api: api},
		catalog:  catalog,
		carts:    carts,
		profiles: profiles,
		orders:   orders,
		requests: requests,
		sessions: NewSessions(),
	}
}

// Run dispatches updates until ctx is cancelled or updates is closed.
func (b *CustomerBot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	dispatch(ctx, "customer", updates, b.HandleUpdate)
}

// HandleUpdate processes one update.
func (b *CustomerBot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.From != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(labelCategories),
			tgbotapi.NewKeyboardButton(labelBrands),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(labelCart),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// --- Messages ---

func (b *CustomerBot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	userID := m.From.ID
	chatID := m.Chat.ID
	text := strings.TrimSpace(m.Text)

	if m.IsCommand() {
		switch m.Command() {
		case "start":
			b.sessions.Reset(userID)
			b.replyWith(chatID, `👋 Benvingut/da! Pots cercar escrivint (ex: "samba") o navegar pel catàleg:`, mainKeyboard())
		case "categories":
			b.showFacets(ctx, chatID, service.FacetCategory)
		case "marques":
			b.showFacets(ctx, chatID, service.FacetBrand)
		case "cistella":
			b.showCart(ctx, chatID, userID)
		case "dades":
			b.editProfile(ctx, chatID, userID)
		case "cancel":
			b.sessions.Reset(userID)
			b.replyWith(chatID, "D'acord, ho deixem aquí.", mainKeyboard())
		}
		return
	}
	if text == "" {
		return
	}

	sess := b.sessions.Get(userID)
	switch sess.Step {
	case StepAskQuantity:
		b.handleQuantity(ctx, m, sess)
		return
	case StepAskName, StepAskAddress:
		b.handleProfileAnswer(ctx, m, sess)
		return
	case StepRequestName, StepRequestSize, StepRequestNotes:
		b.handleRequestAnswer(ctx, m, sess)
		return
	}

	switch {
	case menuCategories.MatchString(text):
		b.showFacets(ctx, chatID, service.FacetCategory)
	case menuBrands.MatchString(text):
		b.showFacets(ctx, chatID, service.FacetBrand)
	case menuCart.MatchString(text):
		b.showCart(ctx, chatID, userID)
	default:
		b.search(ctx, m, text)
	}
}

func (b *CustomerBot) search(ctx context.Context, m *tgbotapi.Message, query string) {
	rows, err := b.catalog.Search(ctx, m.From.ID, m.From.UserName, query)
	if err != nil {
		log.Printf("ERROR: search %q: %v", query, err)
		b.reply(m.Chat.ID, genericError)
		return
	}
	if len(rows) == 0 {
		b.sessions.Set(m.From.ID, Session{LastQuery: query})
		kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📝 Demanar aquest producte", cbRequestNew),
		))
		b.replyWith(m.Chat.ID, "No he trobat res amb aquesta cerca. Prova una altra paraula o obre el catàleg.", kb)
		return
	}
	b.replyWith(m.Chat.ID, "He trobat això. Tria un producte:", productButtons(rows, nil))
}

func (b *CustomerBot) showFacets(ctx context.Context, chatID int64, facet service.Facet) {
	rows, err := b.catalog.TopFacets(ctx, facet)
	if err != nil {
		log.Printf("ERROR: top %s: %v", facet, err)
		b.reply(chatID, genericError)
		return
	}

	empty, prompt := "Encara no hi ha categories disponibles.", "Tria una categoria:"
	if facet == service.FacetBrand {
		empty, prompt = "Encara no hi ha marques disponibles.", "Tria una marca:"
	}

	var kb [][]tgbotapi.InlineKeyboardButton
	for _, r := range rows {
		data := facetData(facet, r.Value, 0)
		if len(data) > maxCallbackData {
			log.Printf("WARN: %s %q does not fit in callback data", facet, r.Value)
			continue
		}
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s (%d)", r.Value, r.Count), data),
		))
	}
	if len(kb) == 0 {
		b.reply(chatID, empty)
		return
	}
	b.replyWith(chatID, prompt, tgbotapi.NewInlineKeyboardMarkup(kb...))
}

func facetData(facet service.Facet, value string, page int) string {
	return fmt.Sprintf("%s|%s|%d", facet, url.QueryEscape(value), page)
}

func productButtons(products []database.Product, nav []tgbotapi.InlineKeyboardButton) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(products)+1)
	for _, p := range products {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🧩 "+p.Name, cbProduct+strconv.FormatInt(p.ID, 10)),
		))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func cartText(items []database.LineItem) string {
	lines := []string{"Cistella:"}
	for i, it := range items {
		lines = append(lines, fmt.Sprintf("#%d %s — %s ×%d = %s",
			i+1, it.ProductName, it.VariantLabel, it.Quantity, money.EUR(it.LineTotal())))
	}
	lines = append(lines, "Total: "+money.EUR(service.CartTotal(items)))
	return strings.Join(lines, "\n")
}

func cartButtons(items []database.LineItem) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Confirmar comanda", cbCheckout)),
	}
	var remove []tgbotapi.InlineKeyboardButton
	for i := range items {
		remove = append(remove, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("➖ #%d", i+1), cbCartDelete+strconv.Itoa(i)))
	}
	for len(remove) > 0 {
		n := min(len(remove), 4)
		rows = append(rows, remove[:n])
		remove = remove[n:]
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🧹 Buidar cistella", cbClearCart)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *CustomerBot) showCart(ctx context.Context, chatID, userID int64) {
	items, err := b.carts.Items(ctx, userID)
	if err != nil {
		log.Printf("ERROR: load cart %d: %v", userID, err)
		b.reply(chatID, genericError)
		return
	}
	if len(items) == 0 {
		b.reply(chatID, "La cistella és buida.")
		return
	}
	b.replyWith(chatID, cartText(items), cartButtons(items))
}

func (b *CustomerBot) handleQuantity(ctx context.Context, m *tgbotapi.Message, sess Session) {
	chatID := m.Chat.ID
	qty, _ := strconv.Atoi(nonDigits.ReplaceAllString(m.Text, ""))
	if qty < 1 {
		b.reply(chatID, "Posa un número vàlid (1, 2, 3, …)")
		return
	}

	v, err := b.catalog.Variant(ctx, sess.VariantID)
	var p database.Product
	if err == nil {
		p, err = b.catalog.Product(ctx, sess.ProductID)
	}
	if err != nil {
		b.sessions.Reset(m.From.ID)
		if errors.Is(err, service.ErrProductNotFound) {
			b.reply(chatID, "Ha expirat la selecció. Torna-ho a provar.")
			return
		}
		log.Printf("ERROR: load selection %d/%d: %v", sess.ProductID, sess.VariantID, err)
		b.reply(chatID, genericError)
		return
	}
	if int64(qty) > int64(v.Stock) {
		b.reply(chatID, fmt.Sprintf("Només queden %d unitats en stock.", v.Stock))
		return
	}

	items, err := b.carts.Add(ctx, m.From.ID, service.NewLineItem(p, v, qty))
	if err != nil {
		log.Printf("ERROR: add to cart %d: %v", m.From.ID, err)
		b.reply(chatID, genericError)
		return
	}
	b.sessions.Reset(m.From.ID)

	added := items[len(items)-1]
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🧺 Veure/Confirmar", cbCheckout)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🛍️ Continuar comprant", cbNoop)),
	)
	b.replyWith(chatID, fmt.Sprintf("Afegit a la cistella: %s — %s ×%d.\nTotal actual: %s",
		p.Name, v.OptionValue, added.Quantity, money.EUR(service.CartTotal(items))), kb)
}

// --- Profile prompts ---

func promptFor(field string) (Step, string) {
	if field == service.FieldAddress {
		return StepAskAddress, "Quina és l'adreça d'enviament? (carrer, número, codi postal i ciutat)"
	}
	return StepAskName, "Com et dius? (nom i cognoms per a l'enviament)"
}

func (b *CustomerBot) handleProfileAnswer(ctx context.Context, m *tgbotapi.Message, sess Session) {
	upd := service.ProfileUpdate{OwnerID: m.From.ID, Handle: m.From.UserName}
	if sess.Step == StepAskName {
		upd.DisplayName = m.Text
	} else {
		upd.ShippingAddress = m.Text
	}

	profile, err := b.profiles.Update(ctx, upd)
	if err != nil {
		log.Printf("ERROR: update profile %d: %v", m.From.ID, err)
		b.reply(m.Chat.ID, genericError)
		return
	}

	if sess.Step == StepAskName && !sess.ResumeCheckout {
		sess.Step = StepAskAddress
		b.sessions.Set(m.From.ID, sess)
		_, prompt := promptFor(service.FieldAddress)
		b.reply(m.Chat.ID, prompt)
		return
	}
	if missing := service.MissingProfileFields(profile); len(missing) > 0 {
		step, prompt := promptFor(missing[0])
		sess.Step = step
		b.sessions.Set(m.From.ID, sess)
		b.reply(m.Chat.ID, prompt)
		return
	}

	b.sessions.Reset(m.From.ID)
	if sess.ResumeCheckout {
		b.checkout(ctx, m.Chat.ID, m.From)
		return
	}
	b.reply(m.Chat.ID, "✅ Dades desades.")
}

// editProfile shows the stored shipping data and asks for it again.
func (b *CustomerBot) editProfile(ctx context.Context, chatID, userID int64) {
	profile, err := b.profiles.Get(ctx, userID)
	if err != nil {
		log.Printf("ERROR: get profile %d: %v", userID, err)
		b.reply(chatID, genericError)
		return
	}
	if len(service.MissingProfileFields(profile)) < 2 {
		b.reply(chatID, fmt.Sprintf("Dades actuals:\nNom: %s\nAdreça: %s", profile.DisplayName, profile.ShippingAddress))
	}
	b.sessions.Set(userID, Session{Step: StepAskName})
	_, prompt := promptFor(service.FieldName)
	b.reply(chatID, prompt)
}

// --- Product requests ---

func (b *CustomerBot) handleRequestAnswer(ctx context.Context, m *tgbotapi.Message, sess Session) {
	text := strings.TrimSpace(m.Text)
	if text == "-" {
		text = ""
	}

	switch sess.Step {
	case StepRequestName:
		if text == "" {
			b.reply(m.Chat.ID, "Escriu el nom del producte que busques.")
			return
		}
		sess.Request.DesiredName = text
		sess.Step = StepRequestSize
		b.sessions.Set(m.From.ID, sess)
		b.reply(m.Chat.ID, "Quina talla? (escriu - si no cal)")
	case StepRequestSize:
		sess.Request.DesiredSize = text
		sess.Step = StepRequestNotes
		b.sessions.Set(m.From.ID, sess)
		b.reply(m.Chat.ID, "Alguna nota? (color, pressupost… o - per acabar)")
	case StepRequestNotes:
		sess.Request.Notes = text
		sess.Request.OwnerID = m.From.ID
		sess.Request.Handle = m.From.UserName
		if _, err := b.requests.Create(ctx, sess.Request); err != nil {
			if errors.Is(err, service.ErrRequestNameRequired) {
				sess.Step = StepRequestName
				b.sessions.Set(m.From.ID, sess)
				b.reply(m.Chat.ID, "Escriu el nom del producte que busques.")
				return
			}
			log.Printf("ERROR: create product request for %d: %v", m.From.ID, err)
			b.sessions.Reset(m.From.ID)
			b.reply(m.Chat.ID, genericError)
			return
		}
		b.sessions.Reset(m.From.ID)
		b.replyWith(m.Chat.ID, "📨 Petició registrada! T'avisarem si el trobem.", mainKeyboard())
	}
}

// --- Callbacks ---

func (b *CustomerBot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	switch {
	case data == cbNoop:
		b.answer(cb, "")
	case data == cbCheckout:
		b.answer(cb, "")
		b.checkout(ctx, chatOf(cb), cb.From)
	case data == cbClearCart:
		b.answer(cb, "")
		if err := b.carts.Clear(ctx, cb.From.ID); err != nil {
			log.Printf("ERROR: clear cart %d: %v", cb.From.ID, err)
			b.reply(chatOf(cb), genericError)
			return
		}
		b.editOrReply(cb, "🧹 Cistella buidada.", nil)
	case data == cbRequestNew:
		b.answer(cb, "")
		sess := b.sessions.Get(cb.From.ID)
		b.sessions.Set(cb.From.ID, Session{Step: StepRequestName, LastQuery: sess.LastQuery})
		prompt := "Quin producte busques? Escriu-ne el nom."
		if sess.LastQuery != "" {
			prompt = fmt.Sprintf("Quin producte busques? Escriu-ne el nom (ex: «%s»).", sess.LastQuery)
		}
		b.reply(chatOf(cb), prompt)
	case strings.HasPrefix(data, cbPay):
		b.answer(cb, "")
		id, err := uuid.Parse(strings.TrimPrefix(data, cbPay))
		if err != nil {
			return
		}
		b.resumePayment(ctx, chatOf(cb), cb.From.ID, id)
	case strings.HasPrefix(data, cbCartDelete):
		b.removeLine(ctx, cb)
	case strings.HasPrefix(data, cbProduct):
		b.answer(cb, "")
		id, err := strconv.ParseInt(strings.TrimPrefix(data, cbProduct), 10, 64)
		if err != nil {
			return
		}
		b.showProduct(ctx, cb, id)
	case strings.HasPrefix(data, cbVariant):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, cbVariant), 10, 64)
		if err != nil {
			b.answer(cb, "")
			return
		}
		b.selectVariant(ctx, cb, id)
	default:
		if mm := facetCallback.FindStringSubmatch(data); mm != nil {
			value, err := url.QueryUnescape(mm[2])
			page, _ := strconv.Atoi(mm[3])
			if err != nil {
				b.answer(cb, "")
				return
			}
			b.renderList(ctx, cb, service.Facet(mm[1]), value, page)
			return
		}
		b.answer(cb, "")
	}
}

func chatOf(cb *tgbotapi.CallbackQuery) int64 {
	if cb.Message != nil {
		return cb.Message.Chat.ID
	}
	return cb.From.ID
}

func (b *CustomerBot) renderList(ctx context.Context, cb *tgbotapi.CallbackQuery, facet service.Facet, value string, page int) {
	pg, err := b.catalog.Page(ctx, facet, value, page)
	if err != nil {
		log.Printf("ERROR: %v", err)
		b.answer(cb, genericError)
		return
	}
	if len(pg.Products) == 0 {
		b.answer(cb, "Sense productes")
		return
	}
	b.answer(cb, "")

	var nav []tgbotapi.InlineKeyboardButton
	if pg.Page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("◀️ Ant", facetData(facet, value, pg.Page-1)))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Pàg. %d/%d", pg.Page+1, pg.Pages), cbNoop))
	if pg.Page < pg.Pages-1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("▶️ Seg", facetData(facet, value, pg.Page+1)))
	}

	title := "Categoria: " + value
	if facet == service.FacetBrand {
		title = "Marca: " + value
	}
	kb := productButtons(pg.Products, nav)
	b.editOrReply(cb, title+"\nTria un producte:", &kb)
}

func (b *CustomerBot) showProduct(ctx context.Context, cb *tgbotapi.CallbackQuery, id int64) {
	p, err := b.catalog.Product(ctx, id)
	if err != nil {
		if !errors.Is(err, service.ErrProductNotFound) {
			log.Printf("ERROR: %v", err)
		}
		b.reply(chatOf(cb), "Producte no trobat.")
		return
	}
	variants, err := b.catalog.Variants(ctx, id)
	if err != nil {
		log.Printf("ERROR: %v", err)
		b.reply(chatOf(cb), genericError)
		return
	}
	if len(variants) == 0 {
		b.reply(chatOf(cb), fmt.Sprintf("«%s» no té variants disponibles ara mateix.", p.Name))
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, len(variants))
	for i, v := range variants {
		label := fmt.Sprintf("%s — %s (%d stock)", v.OptionValue, money.EUR(v.PriceCents), v.Stock)
		rows[i] = tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, cbVariant+strconv.FormatInt(v.ID, 10)))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	text := fmt.Sprintf("Opcions per a «%s» (des de %s):", p.Name, money.EUR(service.ResolvePrice(p, variants)))
	b.editOrReply(cb, text, &kb)
}

func (b *CustomerBot) selectVariant(ctx context.Context, cb *tgbotapi.CallbackQuery, id int64) {
	v, err := b.catalog.Variant(ctx, id)
	var p database.Product
	if err == nil {
		p, err = b.catalog.Product(ctx, v.ProductID)
	}
	if err != nil {
		if !errors.Is(err, service.ErrProductNotFound) {
			log.Printf("ERROR: %v", err)
		}
		b.answer(cb, "Variant no disponible")
		return
	}
	b.answer(cb, "")
	if v.Stock <= 0 {
		b.reply(chatOf(cb), fmt.Sprintf("«%s — %s» està esgotat.", p.Name, v.OptionValue))
		return
	}

	b.sessions.Set(cb.From.ID, Session{Step: StepAskQuantity, ProductID: p.ID, VariantID: v.ID})
	b.reply(chatOf(cb), fmt.Sprintf("Quantes unitats vols de «%s — %s»? Escriu un número (stock: %d).", p.Name, v.OptionValue, v.Stock))
}

func (b *CustomerBot) removeLine(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	idx, err := strconv.Atoi(strings.TrimPrefix(cb.Data, cbCartDelete))
	if err != nil {
		b.answer(cb, "")
		return
	}
	items, err := b.carts.SetQuantity(ctx, cb.From.ID, idx, 0)
	if err != nil {
		if errors.Is(err, service.ErrInvalidLineIndex) {
			b.answer(cb, "Aquesta línia ja no hi és")
			return
		}
		log.Printf("ERROR: remove cart line %d for %d: %v", idx, cb.From.ID, err)
		b.answer(cb, genericError)
		return
	}
	b.answer(cb, "Eliminat")
	if len(items) == 0 {
		b.editOrReply(cb, "La cistella és buida.", nil)
		return
	}
	kb := cartButtons(items)
	b.editOrReply(cb, cartText(items), &kb)
}

// --- Checkout ---

func (b *CustomerBot) checkout(ctx context.Context, chatID int64, from *tgbotapi.User) {
	res, err := b.orders.Checkout(ctx, service.CheckoutRequest{OwnerID: from.ID, Handle: from.UserName})

	var incomplete *service.ProfileIncompleteError
	switch {
	case err == nil:
		b.sendPaymentLink(chatID, res)
	case errors.As(err, &incomplete):
		field := service.FieldName
		if len(incomplete.Missing) > 0 {
			field = incomplete.Missing[0]
		}
		step, prompt := promptFor(field)
		b.sessions.Set(from.ID, Session{Step: step, ResumeCheckout: true})
		b.reply(chatID, "Abans de pagar necessitem les teves dades d'enviament.\n"+prompt)
	case errors.Is(err, service.ErrEmptyCart):
		b.reply(chatID, "Cistella buida.")
	case errors.Is(err, service.ErrOutOfStock):
		b.reply(chatID, "Sense stock suficient per a algun producte de la cistella. Revisa-la i torna-ho a provar.")
	case errors.Is(err, service.ErrGatewayUnavailable) && res != nil:
		b.sendRetry(chatID, res.Order)
	default:
		log.Printf("ERROR: checkout for %d: %v", from.ID, err)
		b.reply(chatID, genericError)
	}
}

func (b *CustomerBot) resumePayment(ctx context.Context, chatID, ownerID int64, orderID uuid.UUID) {
	res, err := b.orders.ResumePayment(ctx, orderID, ownerID)
	switch {
	case err == nil:
		b.sendPaymentLink(chatID, res)
	case errors.Is(err, service.ErrInvalidTransition):
		b.reply(chatID, "Aquesta comanda ja està pagada o tancada.")
	case errors.Is(err, service.ErrPaymentPending):
		b.reply(chatID, "PayPal encara està processant el pagament d'aquesta comanda. T'avisarem quan es completi.")
	case errors.Is(err, service.ErrOrderNotFound):
		b.reply(chatID, "No s'ha trobat la comanda.")
	case errors.Is(err, service.ErrGatewayUnavailable) && res != nil:
		b.sendRetry(chatID, res.Order)
	default:
		log.Printf("ERROR: resume payment %s: %v", orderID, err)
		b.reply(chatID, genericError)
	}
}

func (b *CustomerBot) sendPaymentLink(chatID int64, res *service.CheckoutResult) {
	lines := []string{fmt.Sprintf("🧾 Comanda #%s registrada.", service.ShortID(res.Order.ID)), ""}
	for _, it := range res.Items {
		lines = append(lines, notify.ItemLine(it))
	}
	lines = append(lines, "", "Total: "+money.EUR(res.Order.TotalCents), "Paga amb PayPal per confirmar-la:")

	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("💳 Pagar amb PayPal", res.ApprovalURL),
	))
	b.replyWith(chatID, strings.Join(lines, "\n"), kb)
}

func (b *CustomerBot) sendRetry(chatID int64, o database.Order) {
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("💳 Tornar a intentar el pagament", cbPay+o.ID.String()),
	))
	b.replyWith(chatID, fmt.Sprintf("Comanda #%s registrada (Total: %s), però ara mateix no hem pogut generar l'enllaç de pagament.",
		service.ShortID(o.ID), money.EUR(o.TotalCents)), kb)
}
