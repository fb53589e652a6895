package marzban

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client — обёртка над API панели Marzban. Токен получается при первом
// запросе и обновляется один раз при 401.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// AdminStats — живая статистика по одному админу панели
type AdminStats struct {
	TotalUsers       int
	TotalTrafficUsed int64
}

// User — пользователь панели в объёме, нужном ядру
type User struct {
	Username    string `json:"username"`
	Status      string `json:"status"`
	UsedTraffic int64  `json:"used_traffic"`
	DataLimit   int64  `json:"data_limit"`
}

// IsExpired сообщает, помечен ли пользователь панелью как истёкший
func (u User) IsExpired() bool {
	return u.Status == "expired"
}

func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Login получает access token, POST form-encoded как требует панель
func (c *Client) Login() error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)
	resp, err := c.httpClient.Post(
		c.baseURL+"/api/admin/token",
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("marzban login: status %d: %s", resp.StatusCode, string(body))
	}
	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if result.AccessToken == "" {
		return errors.New("marzban login: no access token in response")
	}
	c.mu.Lock()
	c.token = result.AccessToken
	c.mu.Unlock()
	return nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// do выполняет запрос с Bearer-токеном, при 401 перелогинивается один раз
func (c *Client) do(method, path string, body interface{}) (*http.Response, error) {
	if c.currentToken() == "" {
		if err := c.Login(); err != nil {
			return nil, err
		}
	}
	resp, err := c.send(method, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if err := c.Login(); err != nil {
			return nil, err
		}
		return c.send(method, path, body)
	}
	return resp, nil
}

func (c *Client) send(method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.currentToken())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// GetUsers возвращает пользователей, принадлежащих указанному админу
func (c *Client) GetUsers(adminUsername string) ([]User, error) {
	path := "/api/users?limit=10000"
	if adminUsername != "" {
		path += "&admin=" + url.QueryEscape(adminUsername)
	}
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("marzban get users: status %d: %s", resp.StatusCode, string(body))
	}
	var result struct {
		Users []User `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Users, nil
}

// GetAdminStats агрегирует живую статистику по пользователям админа
func (c *Client) GetAdminStats(adminUsername string) (*AdminStats, error) {
	users, err := c.GetUsers(adminUsername)
	if err != nil {
		return nil, err
	}
	stats := &AdminStats{TotalUsers: len(users)}
	for _, u := range users {
		stats.TotalTrafficUsed += u.UsedTraffic
	}
	return stats, nil
}

// SetUserStatus переключает статус одного пользователя панели
func (c *Client) SetUserStatus(username, status string) (bool, error) {
	payload := map[string]string{"status": status}
	resp, err := c.do(http.MethodPut, "/api/user/"+url.PathEscape(username), payload)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("marzban set status %s=%s: status %d: %s", username, status, resp.StatusCode, string(body))
	}
	return true, nil
}

// DisableAllActiveUsers отключает всех активных пользователей админа.
// Ошибка по одному пользователю не прерывает остальных.
func (c *Client) DisableAllActiveUsers(adminUsername string) (disabled, failed int, err error) {
	return c.toggleUsers(adminUsername, "active", "disabled")
}

// ActivateAllDisabledUsers включает обратно всех отключённых пользователей
func (c *Client) ActivateAllDisabledUsers(adminUsername string) (activated, failed int, err error) {
	return c.toggleUsers(adminUsername, "disabled", "active")
}

func (c *Client) toggleUsers(adminUsername, from, to string) (done, failed int, err error) {
	users, err := c.GetUsers(adminUsername)
	if err != nil {
		return 0, 0, err
	}
	for _, u := range users {
		if u.Status != from {
			continue
		}
		ok, err := c.SetUserStatus(u.Username, to)
		if err != nil || !ok {
			failed++
			continue
		}
		done++
	}
	return done, failed, nil
}

// RemoveUser удаляет пользователя панели, возвращает флаг успеха
func (c *Client) RemoveUser(username string) (bool, error) {
	resp, err := c.do(http.MethodDelete, "/api/user/"+url.PathEscape(username), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("marzban remove user %s: status %d: %s", username, resp.StatusCode, string(body))
	}
	return true, nil
}

// TestConnection проверяет доступность панели
func (c *Client) TestConnection() bool {
	resp, err := c.do(http.MethodGet, "/api/system", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
