package web

import (
	"net/http"
	"strconv"

	"github.com/npezzotti/go-echoes/internal/account"
	"github.com/npezzotti/go-echoes/internal/api"
	"github.com/npezzotti/go-echoes/internal/feed"
	"github.com/npezzotti/go-echoes/internal/journal"
	"github.com/npezzotti/go-echoes/internal/types"
	"github.com/npezzotti/go-echoes/internal/validate"
)

type homePage struct {
	Echoes types.EchoPage
}

type profilePage struct {
	Profile types.Profile
	Stats   types.ProfileStats
	Friends []types.Friend
}

type friendsPage struct {
	Friends []types.Friend
}

type journalPage struct {
	Vibes []types.Vibe
}

// view loads the data for one signed in page from the caller's profile.
type view struct {
	tmpl  string
	title string
	load  func(sh *Shell, r *http.Request, p types.Profile, data *pageData) error
}

var (
	homeView = view{tmpl: "home.html.tmpl", title: "Feed", load: (*Shell).loadHome}

	profileView = view{tmpl: "profile.html.tmpl", title: "Profile", load: (*Shell).loadProfile}

	friendsView = view{tmpl: "friends.html.tmpl", title: "Friends", load: (*Shell).loadFriends}

	journalView = view{tmpl: "journal.html.tmpl", title: "Journal", load: (*Shell).loadJournal}
)

// formFields are the validated inputs reported next to their control.
var formFields = []string{"content", "mood", "background_color"}

var fieldMessages = map[string]string{
	"notblank": "write something first",
	"mood":     "pick one of the listed moods",
	"bgcolor":  "pick one of the listed colours",
}

// fail renders tmplName with the error's code and message inline.
func (sh *Shell) fail(w http.ResponseWriter, tmplName string, data pageData, err error) {
	errResp := api.NewApiError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		sh.log.Errorw("page request failed", "page", tmplName, "error", err)
	}

	for _, field := range formFields {
		tag, ok := validate.FailedField(err, field)
		if !ok {
			continue
		}
		if data.FieldErrors == nil {
			data.FieldErrors = make(map[string]string)
		}
		msg, ok := fieldMessages[tag]
		if !ok {
			msg = "invalid value"
		}
		data.FieldErrors[field] = msg
	}

	data.Error = errResp.Message
	data.ErrorCode = errResp.Code
	sh.render(w, errResp.StatusCode, tmplName, data)
}

// load runs v for accountId. Every signed in page shows the caller's
// current identifier, so the profile is ensured first. The returned
// pageData keeps whatever was loaded before an error.
func (sh *Shell) load(r *http.Request, accountId string, v view) (pageData, error) {
	data := pageData{Title: v.title}

	p, err := sh.svc.Identity.Ensure(r.Context(), accountId)
	if err != nil {
		return data, err
	}
	data.RotatingId = p.RotatingId

	return data, v.load(sh, r, p, &data)
}

func (sh *Shell) show(v view) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, accountId string) {
		data, err := sh.load(r, accountId, v)
		if err != nil {
			sh.fail(w, v.tmpl, data, err)
			return
		}

		sh.render(w, http.StatusOK, v.tmpl, data)
	}
}

// rejected draws v again with err inline and the submitted values kept.
func (sh *Shell) rejected(w http.ResponseWriter, r *http.Request, accountId string, v view, err error) {
	data, loadErr := sh.load(r, accountId, v)
	if loadErr != nil {
		sh.log.Warnw("reload page", "page", v.tmpl, "error", loadErr)
	}
	data.Form = r.PostForm

	sh.fail(w, v.tmpl, data, err)
}

func checked(r *http.Request, name string) bool {
	return r.PostFormValue(name) != ""
}

func (sh *Shell) landing(w http.ResponseWriter, r *http.Request) {
	sh.render(w, http.StatusOK, "landing.html.tmpl", pageData{Title: "Echoes"})
}

func (sh *Shell) authPage(w http.ResponseWriter, r *http.Request) {
	sh.render(w, http.StatusOK, "auth.html.tmpl", pageData{Title: "Sign in"})
}

func (sh *Shell) login(w http.ResponseWriter, r *http.Request) {
	email, password := r.PostFormValue("email"), r.PostFormValue("password")

	_, token, err := sh.svc.Accounts.Login(r.Context(), email, password)
	if err != nil {
		sh.fail(w, "auth.html.tmpl", pageData{Title: "Sign in", Email: email}, err)
		return
	}

	http.SetCookie(w, account.SessionCookie(token))
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

func (sh *Shell) signup(w http.ResponseWriter, r *http.Request) {
	email, password := r.PostFormValue("email"), r.PostFormValue("password")

	_, token, err := sh.svc.Accounts.Signup(r.Context(), email, password)
	if err != nil {
		sh.fail(w, "auth.html.tmpl", pageData{Title: "Sign up", Email: email}, err)
		return
	}

	http.SetCookie(w, account.SessionCookie(token))
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

func (sh *Shell) reset(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")

	if err := sh.svc.Accounts.ResetPassword(r.Context(), email); err != nil {
		sh.fail(w, "auth.html.tmpl", pageData{Title: "Reset password", Email: email}, err)
		return
	}

	sh.render(w, http.StatusOK, "auth.html.tmpl", pageData{
		Title:  "Reset password",
		Email:  email,
		Notice: "Check your inbox for a reset link.",
	})
}

func (sh *Shell) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, sh.svc.Accounts.Logout())
	http.Redirect(w, r, "/auth", http.StatusSeeOther)
}

func (sh *Shell) loadHome(r *http.Request, _ types.Profile, data *pageData) error {
	page := 1
	if n, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		page = n
	}

	echoes, err := sh.svc.Feed.Window(r.Context(), feed.WindowStart(sh.now()))
	if err != nil {
		return err
	}

	result, err := feed.Paginate(echoes, page)
	if err != nil {
		return err
	}

	data.Page = homePage{Echoes: result}
	return nil
}

func (sh *Shell) postEcho(w http.ResponseWriter, r *http.Request, accountId string) {
	_, err := sh.svc.Feed.Post(r.Context(), accountId, feed.PostParams{
		Content:         r.PostFormValue("content"),
		Mood:            r.PostFormValue("mood"),
		BackgroundColor: r.PostFormValue("background_color"),
		IsPrivate:       checked(r, "is_private"),
	})
	if err != nil {
		sh.rejected(w, r, accountId, homeView, err)
		return
	}

	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

func (sh *Shell) loadProfile(r *http.Request, p types.Profile, data *pageData) error {
	st, err := sh.svc.Profile.ComputeStats(r.Context(), p.AccountId)
	if err != nil {
		return err
	}

	fs, err := sh.svc.Friends.Resolve(r.Context(), p.Friends)
	if err != nil {
		return err
	}

	data.Page = profilePage{Profile: p, Stats: st, Friends: fs}
	return nil
}

func (sh *Shell) rotate(w http.ResponseWriter, r *http.Request, accountId string) {
	if _, err := sh.svc.Identity.Rotate(r.Context(), accountId); err != nil {
		sh.rejected(w, r, accountId, profileView, err)
		return
	}

	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (sh *Shell) settings(w http.ResponseWriter, r *http.Request, accountId string) {
	if _, err := sh.svc.Identity.SetAutoRotate(r.Context(), accountId, checked(r, "auto_rotate")); err != nil {
		sh.rejected(w, r, accountId, profileView, err)
		return
	}

	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (sh *Shell) loadFriends(r *http.Request, p types.Profile, data *pageData) error {
	fs, err := sh.svc.Friends.Resolve(r.Context(), p.Friends)
	if err != nil {
		return err
	}

	data.Page = friendsPage{Friends: fs}
	return nil
}

func (sh *Shell) addFriend(w http.ResponseWriter, r *http.Request, accountId string) {
	if _, err := sh.svc.Friends.AddFriend(r.Context(), accountId, r.PostFormValue("rotating_id")); err != nil {
		sh.rejected(w, r, accountId, friendsView, err)
		return
	}

	http.Redirect(w, r, "/friends", http.StatusSeeOther)
}

func (sh *Shell) removeFriend(w http.ResponseWriter, r *http.Request, accountId string) {
	if err := sh.svc.Friends.RemoveFriend(r.Context(), accountId, r.PathValue("id")); err != nil {
		sh.rejected(w, r, accountId, friendsView, err)
		return
	}

	http.Redirect(w, r, "/friends", http.StatusSeeOther)
}

func (sh *Shell) loadJournal(r *http.Request, p types.Profile, data *pageData) error {
	vibes, err := sh.svc.Journal.List(r.Context(), p.AccountId)
	if err != nil {
		return err
	}

	data.Page = journalPage{Vibes: vibes}
	return nil
}

func (sh *Shell) saveVibe(w http.ResponseWriter, r *http.Request, accountId string) {
	_, _, err := sh.svc.Journal.Save(r.Context(), accountId, journal.SaveParams{
		Content:     r.PostFormValue("content"),
		Mood:        r.PostFormValue("mood"),
		ShareToFeed: checked(r, "share_to_feed"),
	})
	if err != nil {
		sh.rejected(w, r, accountId, journalView, err)
		return
	}

	http.Redirect(w, r, "/journal", http.StatusSeeOther)
}

func (sh *Shell) deleteVibe(w http.ResponseWriter, r *http.Request, accountId string) {
	if err := sh.svc.Journal.Delete(r.Context(), accountId, r.PathValue("id")); err != nil {
		sh.rejected(w, r, accountId, journalView, err)
		return
	}

	http.Redirect(w, r, "/journal", http.StatusSeeOther)
}
