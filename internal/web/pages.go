// Package web はワークアウト管理のWeb UIを提供する。
// 画面はサーバー側で描画し、データはすべてAPIサーバー経由で読み書きする。
package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fiturae/fiturae/internal/client"
	"github.com/fiturae/fiturae/internal/middleware"
	"github.com/fiturae/fiturae/internal/model"
)

// HomePath はログイン後のダッシュボードのパス。
const HomePath = "/home"

// blankPlanRows はフォームに追加で表示する空の種目行の数。
const blankPlanRows = 3

// Pages はWeb UIの各画面のハンドラー。
type Pages struct {
	api          *client.Client
	render       *renderer
	logger       *slog.Logger
	loginURL     string
	cookieDomain string
	cookieSecure bool
}

// sessionID はブラウザから届いたセッションCookieの値を返す。
func sessionID(r *http.Request) string {
	c, err := r.Cookie(middleware.SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (p *Pages) userAPI(r *http.Request) *client.UserClient {
	return p.api.As(sessionID(r))
}

// --- 公開画面 ---

// StartPage はトップ画面を描画する。
func (p *Pages) StartPage(w http.ResponseWriter, r *http.Request) {
	p.render.render(w, http.StatusOK, pageStart, newLayoutData(r))
}

type loginPage struct {
	layoutData
	LoginURL string
}

// LoginPage はGitHubログインへの導線を描画する。
func (p *Pages) LoginPage(w http.ResponseWriter, r *http.Request) {
	p.render.render(w, http.StatusOK, pageLogin, loginPage{
		layoutData: newLayoutData(r),
		LoginURL:   p.loginURL,
	})
}

// --- ダッシュボード ---

type homePage struct {
	layoutData
	UserID    string
	UserName  string
	ImageURL  string
	Workouts  []model.Workout
	LoadError string
}

// HomePage はWorkoutProviderが読み込んだ一覧を使ってダッシュボードを描画する。
func (p *Pages) HomePage(userName, imageURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := homePage{
			layoutData: newLayoutData(r),
			UserName:   userName,
			ImageURL:   imageURL,
		}
		if state := WorkoutsFromContext(r.Context()); state != nil {
			data.UserID = state.UserID
			data.Workouts = state.Workouts
			if state.Err != nil {
				p.logger.Warn("failed to load workouts",
					slog.String("user_id", state.UserID),
					slog.String("error", state.Err.Error()),
				)
				data.LoadError = "Your workouts could not be loaded. Please try again later."
			}
		}
		p.render.render(w, http.StatusOK, pageHome, data)
	})
}

// HomeWithWorkouts はWorkoutProviderでHomePageを包んだハンドラーを返す。
func (p *Pages) HomeWithWorkouts(userID, userName, imageURL string) http.Handler {
	lister := func(r *http.Request) WorkoutLister { return p.userAPI(r) }
	return WorkoutProvider(lister, userID, p.HomePage(userName, imageURL))
}

// Home はログイン中の利用者のダッシュボードを描画する。
// GET /home
func (p *Pages) Home(w http.ResponseWriter, r *http.Request) {
	v := ViewerFromContext(r.Context())
	p.HomeWithWorkouts(v.Identity.ID, v.Identity.Name, v.Identity.ImageURL).ServeHTTP(w, r)
}

// Logout はAPI側のセッションを破棄し、ガードの判定をやり直す。
// POST /logout
func (p *Pages) Logout(w http.ResponseWriter, r *http.Request) {
	v := ViewerFromContext(r.Context())
	if err := p.userAPI(r).Logout(r.Context()); err != nil {
		p.logger.Warn("failed to log out from api",
			slog.String("user_id", v.Identity.ID),
			slog.String("error", err.Error()),
		)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   p.cookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	v.Logout()
	writeDecision(w, r, v.Redecide(r.Context()))
}

// --- ワークアウト ---

type workoutPage struct {
	layoutData
	Workout *model.Workout
}

// ShowWorkout はワークアウトの詳細を描画する。
// GET /workout/{id}
func (p *Pages) ShowWorkout(w http.ResponseWriter, r *http.Request) {
	workout, err := p.userAPI(r).GetWorkout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		p.handleAPIError(w, r, err)
		return
	}
	p.render.render(w, http.StatusOK, pageWorkout, workoutPage{layoutData: newLayoutData(r), Workout: workout})
}

// planRow はフォームの種目1行分の入力値。空行を表現するため文字列で保持する。
type planRow struct {
	Name   string
	Sets   string
	Reps   string
	Weight string
}

// workoutForm はワークアウトフォームの入力値。
type workoutForm struct {
	WorkoutName string
	WorkoutDay  model.WeekDay
	Description string
	Plan        []planRow
}

type formPage struct {
	layoutData
	FormType  string
	Action    string
	CancelURL string
	FormError string
	Form      workoutForm
	Days      []model.WeekDay
}

func formFromWorkout(w *model.Workout) workoutForm {
	f := workoutForm{
		WorkoutName: w.WorkoutName,
		WorkoutDay:  w.WorkoutDay,
		Description: w.Description,
	}
	for _, e := range w.Plan {
		f.Plan = append(f.Plan, planRow{
			Name:   e.Name,
			Sets:   strconv.Itoa(e.Sets),
			Reps:   strconv.Itoa(e.Reps),
			Weight: strconv.FormatFloat(e.Weight, 'f', -1, 64),
		})
	}
	return f
}

// renderForm は作成・編集共通のフォームを描画する。空の種目行を末尾に補う。
func (p *Pages) renderForm(w http.ResponseWriter, r *http.Request, status int, page formPage) {
	page.layoutData = newLayoutData(r)
	page.Days = model.WeekDays()
	if page.Form.WorkoutDay == "" {
		page.Form.WorkoutDay = model.Monday
	}
	for i := 0; i < blankPlanRows; i++ {
		page.Form.Plan = append(page.Form.Plan, planRow{})
	}
	p.render.render(w, status, pageForm, page)
}

// CreatePage は新規作成フォームを描画する。
// GET /workout/new
func (p *Pages) CreatePage(w http.ResponseWriter, r *http.Request) {
	p.renderForm(w, r, http.StatusOK, createFormPage(workoutForm{}, ""))
}

func createFormPage(form workoutForm, formErr string) formPage {
	return formPage{
		FormType:  "create",
		Action:    "/workout",
		CancelURL: HomePath,
		FormError: formErr,
		Form:      form,
	}
}

// editFormPage は既存のワークアウトを編集フォームにする。
// キャンセル時はワークアウトの詳細画面へ戻る。
func editFormPage(workout *model.Workout, formErr string) formPage {
	return formPage{
		FormType:  "edit",
		Action:    "/workout/" + workout.ID,
		CancelURL: "/workout/" + workout.ID,
		FormError: formErr,
		Form:      formFromWorkout(workout),
	}
}

// EditPage は既存のワークアウトの編集フォームを描画する。
// GET /workout/{id}/edit
func (p *Pages) EditPage(w http.ResponseWriter, r *http.Request) {
	workout, err := p.userAPI(r).GetWorkout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		p.handleAPIError(w, r, err)
		return
	}
	p.renderForm(w, r, http.StatusOK, editFormPage(workout, ""))
}

// Create はフォームの内容でワークアウトを作成する。
// POST /workout
func (p *Pages) Create(w http.ResponseWriter, r *http.Request) {
	v := ViewerFromContext(r.Context())
	form, edit, err := parseWorkoutForm(r)
	if err != nil {
		p.renderForm(w, r, http.StatusBadRequest, createFormPage(form, err.Error()))
		return
	}

	workout, err := p.userAPI(r).CreateWorkout(r.Context(), model.WorkoutDetails{
		UserID:      v.Identity.ID,
		WorkoutName: edit.WorkoutName,
		WorkoutDay:  edit.WorkoutDay,
		Description: edit.Description,
		Plan:        edit.Plan,
	})
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			p.renderForm(w, r, http.StatusBadRequest, createFormPage(form, msg))
			return
		}
		p.handleAPIError(w, r, err)
		return
	}
	http.Redirect(w, r, "/workout/"+workout.ID, http.StatusSeeOther)
}

// Update はフォームの内容でワークアウトを更新する。
// POST /workout/{id}
func (p *Pages) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	form, edit, err := parseWorkoutForm(r)
	if err != nil {
		page := editFormPage(&model.Workout{ID: id}, err.Error())
		page.Form = form
		p.renderForm(w, r, http.StatusBadRequest, page)
		return
	}

	if _, err := p.userAPI(r).EditWorkout(r.Context(), id, edit); err != nil {
		if msg, ok := validationMessage(err); ok {
			page := editFormPage(&model.Workout{ID: id}, msg)
			page.Form = form
			p.renderForm(w, r, http.StatusBadRequest, page)
			return
		}
		p.handleAPIError(w, r, err)
		return
	}
	http.Redirect(w, r, "/workout/"+id, http.StatusSeeOther)
}

// Delete はワークアウトを削除してダッシュボードへ戻る。
// POST /workout/{id}/delete
func (p *Pages) Delete(w http.ResponseWriter, r *http.Request) {
	if err := p.userAPI(r).DeleteWorkout(r.Context(), chi.URLParam(r, "id")); err != nil {
		p.handleAPIError(w, r, err)
		return
	}
	http.Redirect(w, r, HomePath, http.StatusSeeOther)
}

// parseWorkoutForm はフォームの入力値を読み取る。
// 名前が空の種目行は無視する。数値が不正な場合は入力値とともにエラーを返す。
func parseWorkoutForm(r *http.Request) (workoutForm, model.WorkoutEdit, error) {
	if err := r.ParseForm(); err != nil {
		return workoutForm{}, model.WorkoutEdit{}, errors.New("the form could not be read")
	}

	form := workoutForm{
		WorkoutName: strings.TrimSpace(r.PostFormValue("workoutName")),
		WorkoutDay:  model.WeekDay(r.PostFormValue("workoutDay")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
	}
	edit := model.WorkoutEdit{
		WorkoutName: form.WorkoutName,
		WorkoutDay:  form.WorkoutDay,
		Description: form.Description,
		Plan:        []model.WorkoutExercise{},
	}

	names := r.PostForm["plan_name"]
	var firstErr error
	for i, name := range names {
		row := planRow{
			Name:   strings.TrimSpace(name),
			Sets:   formValueAt(r, "plan_sets", i),
			Reps:   formValueAt(r, "plan_reps", i),
			Weight: formValueAt(r, "plan_weight", i),
		}
		if row.Name == "" {
			continue
		}
		form.Plan = append(form.Plan, row)

		exercise, err := parseExercise(row)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		edit.Plan = append(edit.Plan, exercise)
	}

	if form.WorkoutName == "" && firstErr == nil {
		firstErr = errors.New("a workout name is required")
	}
	if !form.WorkoutDay.Valid() && firstErr == nil {
		firstErr = errors.New("choose a day of the week")
	}
	return form, edit, firstErr
}

func formValueAt(r *http.Request, key string, i int) string {
	values := r.PostForm[key]
	if i >= len(values) {
		return ""
	}
	return strings.TrimSpace(values[i])
}

func parseExercise(row planRow) (model.WorkoutExercise, error) {
	e := model.WorkoutExercise{Name: row.Name}
	var err error
	if e.Sets, err = atoiOrZero(row.Sets); err != nil || e.Sets < 0 {
		return e, fmt.Errorf("sets for %q must be a whole number of zero or more", row.Name)
	}
	if e.Reps, err = atoiOrZero(row.Reps); err != nil || e.Reps < 0 {
		return e, fmt.Errorf("reps for %q must be a whole number of zero or more", row.Name)
	}
	if row.Weight != "" {
		if e.Weight, err = strconv.ParseFloat(row.Weight, 64); err != nil || e.Weight < 0 {
			return e, fmt.Errorf("weight for %q must be a number of zero or more", row.Name)
		}
	}
	return e, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func validationMessage(err error) (string, bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeValidation {
		return apiErr.Message, true
	}
	return "", false
}

// handleAPIError はAPIエラーを画面に変換する。
// セッション切れはログイン画面へ、それ以外は対応するエラー画面を描画する。
func (p *Pages) handleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	errors.As(err, &apiErr)

	switch client.ErrorCode(err) {
	case model.ErrCodeUnauthorized:
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
	case model.ErrCodeWorkoutNotFound, model.ErrCodeUserNotFound:
		p.render.renderError(w, r, http.StatusNotFound, "Not found", apiErr.Message)
	case model.ErrCodeForbidden:
		p.render.renderError(w, r, http.StatusForbidden, "Not allowed", "Only your own workouts can be viewed or changed.")
	case model.ErrCodeRateLimited:
		p.render.renderError(w, r, http.StatusTooManyRequests, "Slow down", "Too many requests. Please wait a moment and try again.")
	default:
		p.logger.Error("api request failed", slog.String("error", err.Error()))
		p.render.renderError(w, r, http.StatusBadGateway, "Something went wrong", "The workout service is unavailable. Please try again later.")
	}
}
